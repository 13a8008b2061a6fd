// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const callbackPath = "/auth/shopify/callback"

type Config struct {
	Env      string
	HTTPAddr string

	// Shopify app credentials. Legacy SHOPIFY_API_KEY / SHOPIFY_API_SECRET are still read.
	ShopifyClientID     string
	ShopifyClientSecret string
	ShopifyScopes       string
	// Base URL of this app (no trailing slash); must match the App URL in the Shopify dashboard.
	AppURL        string
	RedirectURI   string
	ConnectedPath string

	StateTTL        time.Duration
	ExchangeTimeout time.Duration

	// Credential persistence: Postgres when DatabaseURL is set, otherwise StoresFile.
	StoresFile    string
	EncryptionKey string

	// Redis backs the OAuth state registry when set (shared across instances).
	RedisURL    string
	DatabaseURL string

	// Optional bearer guard on the shop management API.
	AdminIssuer   string
	AdminAudience string
	AdminJWKSURL  string

	CORSOrigins []string

	// Chat completion upstream (OpenAI-compatible).
	ChatAPIKey  string
	ChatBaseURL string
	ChatModel   string
}

// Configured reports whether the Shopify client credentials are present.
func (c Config) Configured() bool {
	return c.ShopifyClientID != "" && c.ShopifyClientSecret != ""
}

// fileOverlay mirrors the subset of Config that may be supplied by SHOPCONNECT_CONFIG.
type fileOverlay struct {
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`
	Shopify  struct {
		ClientID      string `yaml:"client_id"`
		ClientSecret  string `yaml:"client_secret"`
		Scopes        string `yaml:"scopes"`
		AppURL        string `yaml:"app_url"`
		ConnectedPath string `yaml:"connected_path"`
	} `yaml:"shopify"`
	StoresFile  string   `yaml:"stores_file"`
	RedisURL    string   `yaml:"redis_url"`
	DatabaseURL string   `yaml:"database_url"`
	CORSOrigins []string `yaml:"cors_origins"`
	Chat        struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"chat"`
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                 os.Getenv("SHOPCONNECT_ENV"),
		HTTPAddr:            os.Getenv("SHOPCONNECT_HTTP_ADDR"),
		ShopifyClientID:     firstEnv("SHOPIFY_CLIENT_ID", "SHOPIFY_API_KEY"),
		ShopifyClientSecret: firstEnv("SHOPIFY_CLIENT_SECRET", "SHOPIFY_API_SECRET"),
		ShopifyScopes:       env("SHOPIFY_SCOPES", ""),
		AppURL:              os.Getenv("SHOPIFY_APP_URL"),
		ConnectedPath:       os.Getenv("SHOPIFY_CONNECTED_PATH"),
		StateTTL:            envDur("OAUTH_STATE_TTL_SEC", 600) * time.Second,
		ExchangeTimeout:     envDur("SHOPIFY_EXCHANGE_TIMEOUT_SEC", 10) * time.Second,
		StoresFile:          os.Getenv("STORES_FILE"),
		EncryptionKey:       os.Getenv("ENCRYPTION_KEY"),
		RedisURL:            env("REDIS_URL", ""),
		DatabaseURL:         env("DATABASE_URL", ""),
		AdminIssuer:         os.Getenv("ADMIN_OIDC_ISSUER"),
		AdminAudience:       os.Getenv("ADMIN_OIDC_AUDIENCE"),
		AdminJWKSURL:        os.Getenv("ADMIN_JWKS_URL"),
		CORSOrigins:         envList("CORS_ORIGINS"),
		ChatAPIKey:          os.Getenv("DEEPSEEK_API_KEY"),
		ChatBaseURL:         os.Getenv("DEEPSEEK_BASE_URL"),
		ChatModel:           os.Getenv("DEEPSEEK_MODEL"),
	}
	if p := os.Getenv("SHOPCONNECT_CONFIG"); p != "" {
		if err := cfg.overlayFile(p); err != nil {
			log.Printf("[WARN] config overlay %s: %v", p, err)
		}
	}
	cfg.applyDefaults()
	if !cfg.Configured() {
		log.Println("[WARN] SHOPIFY_CLIENT_ID / SHOPIFY_CLIENT_SECRET not set; install flow will answer 503")
	}
	return cfg
}

// overlayFile fills values that the environment left empty.
func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileOverlay
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&c.Env, f.Env)
	fill(&c.HTTPAddr, f.HTTPAddr)
	fill(&c.ShopifyClientID, f.Shopify.ClientID)
	fill(&c.ShopifyClientSecret, f.Shopify.ClientSecret)
	fill(&c.ShopifyScopes, f.Shopify.Scopes)
	fill(&c.AppURL, f.Shopify.AppURL)
	fill(&c.ConnectedPath, f.Shopify.ConnectedPath)
	fill(&c.StoresFile, f.StoresFile)
	fill(&c.RedisURL, f.RedisURL)
	fill(&c.DatabaseURL, f.DatabaseURL)
	fill(&c.ChatBaseURL, f.Chat.BaseURL)
	fill(&c.ChatModel, f.Chat.Model)
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = f.CORSOrigins
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8000"
	}
	if c.ShopifyScopes == "" {
		c.ShopifyScopes = "read_orders"
	}
	c.AppURL = strings.TrimRight(strings.TrimSpace(c.AppURL), "/")
	if c.AppURL == "" {
		c.AppURL = "http://localhost:8000"
	}
	// redirect_uri is always derived from the app URL.
	c.RedirectURI = c.AppURL + callbackPath
	if c.ConnectedPath == "" {
		c.ConnectedPath = "/connect?connected=1"
	}
	if c.StoresFile == "" {
		c.StoresFile = "data/stores.json"
	}
	if c.ChatBaseURL == "" {
		c.ChatBaseURL = "https://api.deepseek.com"
	}
	if c.ChatModel == "" {
		c.ChatModel = "deepseek-chat"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{
			"http://localhost:3000", "http://127.0.0.1:3000",
			"http://localhost:5500", "http://127.0.0.1:5500",
			"http://localhost:8000", "http://127.0.0.1:8000",
		}
		if strings.HasPrefix(c.AppURL, "https://") {
			c.CORSOrigins = append(c.CORSOrigins, c.AppURL)
		}
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envList(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
