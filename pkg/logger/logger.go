// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

type Sugared = *zap.SugaredLogger

// New returns the service logger; JSON production encoding when env is "prod".
func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Named("shopconnect").Sugar()
}

// Nop discards everything.
func Nop() Sugared { return zap.NewNop().Sugar() }
