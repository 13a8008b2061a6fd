// cmd/shopconnect-service/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shopconnect/internal/chat"
	"shopconnect/internal/credentials"
	"shopconnect/internal/install"
	"shopconnect/internal/oauthstate"
	"shopconnect/internal/orderpolicy"
	"shopconnect/internal/shopifyauth"
	"shopconnect/internal/storedata"
	"shopconnect/pkg/config"
	"shopconnect/pkg/db"
	"shopconnect/pkg/logger"
	"shopconnect/pkg/middleware"
	"shopconnect/pkg/openapi"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	defer log.Sync()

	pool := db.MustConnect(cfg, log, db.WithSchema(credentials.EnsureSchema))
	rdb := db.MustRedis(cfg, log)

	var states oauthstate.Registry
	if rdb != nil {
		states = oauthstate.NewRedis(rdb, cfg.StateTTL, "")
	} else {
		states = oauthstate.NewMemory(cfg.StateTTL)
	}

	var store credentials.Store
	if pool != nil {
		store = credentials.NewPostgresStore(pool, log)
	} else {
		fs, err := credentials.NewFileStore(cfg.StoresFile, cfg.EncryptionKey)
		if err != nil {
			log.Fatalw("credential store", "path", cfg.StoresFile, "err", err)
		}
		store = fs
		log.Infow("credential store", "path", cfg.StoresFile, "encrypted", cfg.EncryptionKey != "")
	}

	installMetrics, err := install.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalw("metrics", "err", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalw("metrics", "err", err)
	}

	exchanger := shopifyauth.NewClient(cfg.ShopifyClientID, cfg.ShopifyClientSecret, cfg.ExchangeTimeout)
	installSvc := install.NewService(cfg, states, exchanger, store, log, installMetrics)

	policy, err := orderpolicy.New(context.Background())
	if err != nil {
		log.Fatalw("order policy", "err", err)
	}
	chatSvc := chat.NewService(
		chat.NewOpenAIClient(cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatModel),
		store,
		storedata.NewClient(policy, log),
		log,
	)

	log.Infow("shopify oauth", "client_id", cfg.ShopifyClientID, "redirect_uri", cfg.RedirectURI, "configured", cfg.Configured())

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.DebugWriteHeader(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Tracing("shopconnect", log))
	r.Use(httpMetrics.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	install.RegisterRoutes(r, installSvc, log, middleware.AdminAuth(cfg, log))
	chat.RegisterRoutes(r, chatSvc, log)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	doc := openapi.NewRegistry()
	doc.Register(install.Operations()...)
	doc.Register(chat.Operations()...)
	r.Get("/.well-known/openapi.json", doc.ServeHandler("shopconnect", "1.0.0"))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("shopconnect-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if rdb != nil {
		_ = rdb.Close()
	}
	if pool != nil {
		pool.Close()
	}
	log.Infow("shopconnect-service stopped")
}
