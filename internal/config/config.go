package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Supabase
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string

	// Artifact storage
	StorageBackend string // "supabase" or "minio"
	InputBucket    string
	OutputBucket   string
	SignedURLTTL   time.Duration
	PublicURLs     bool

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	// Stripe
	StripeSecretKey        string
	StripeWebhookSecret    string
	PriceInCents           int64
	Currency               string
	ProductName            string
	CheckoutSuccessURL     string
	CheckoutCancelURL      string
	StrictSessionWriteBack bool

	// Inference
	InferenceProvider string // "replicate" or "gemini"
	ReplicateAPIToken string
	ReplicateBaseURL  string
	ReplicateModel    string
	GeminiAPIKey      string
	GeminiModel       string
	InferenceTimeout  time.Duration
	PipelineTimeout   time.Duration
	MaxUploadBytes    int64

	// Events
	AMQPURL      string
	AMQPExchange string

	// Database
	DatabaseURL string
	AutoMigrate bool

	// Server
	Port        string
	Environment string
	BaseURL     string
	LogLevel    string
	LogFormat   string
}

var defaults = map[string]interface{}{
	"STORAGE_BACKEND":           "supabase",
	"INPUT_BUCKET":              "input-image",
	"OUTPUT_BUCKET":             "output-image",
	"SIGNED_URL_TTL":            "1h",
	"PUBLIC_URLS":               false,
	"MINIO_USE_SSL":             true,
	"PRICE_IN_CENTS":            200,
	"CURRENCY":                  "eur",
	"PRODUCT_NAME":              "AI image generation",
	"CHECKOUT_STRICT_WRITEBACK": true,
	"INFERENCE_PROVIDER":        "replicate",
	"REPLICATE_BASE_URL":        "https://api.replicate.com/v1/",
	"REPLICATE_MODEL":           "google/nano-banana",
	"GEMINI_MODEL":              "gemini-2.5-flash-image-preview",
	"INFERENCE_TIMEOUT":         "2m",
	"PIPELINE_TIMEOUT":          "4m",
	"MAX_UPLOAD_BYTES":          10 << 20,
	"AMQP_EXCHANGE":             "projects",
	"AUTO_MIGRATE":              true,
	"PORT":                      "8080",
	"ENVIRONMENT":               "development",
	"BASE_URL":                  "http://localhost:8080",
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "json",
}

// Load reads configuration from the environment. A .env file in the working
// directory and an optional config file (CONFIG_FILE) are merged in, with
// real environment variables taking precedence. Load does not validate;
// commands call Validate for the settings they need.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return FromViper(v), nil
}

func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		SupabaseURL:            strings.TrimSuffix(v.GetString("SUPABASE_URL"), "/"),
		SupabaseServiceRoleKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:      v.GetString("SUPABASE_JWT_SECRET"),

		StorageBackend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		InputBucket:    v.GetString("INPUT_BUCKET"),
		OutputBucket:   v.GetString("OUTPUT_BUCKET"),
		SignedURLTTL:   v.GetDuration("SIGNED_URL_TTL"),
		PublicURLs:     v.GetBool("PUBLIC_URLS"),

		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		StripeSecretKey:        v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:    v.GetString("STRIPE_WEBHOOK_SECRET"),
		PriceInCents:           v.GetInt64("PRICE_IN_CENTS"),
		Currency:               strings.ToLower(v.GetString("CURRENCY")),
		ProductName:            v.GetString("PRODUCT_NAME"),
		CheckoutSuccessURL:     v.GetString("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:      v.GetString("CHECKOUT_CANCEL_URL"),
		StrictSessionWriteBack: v.GetBool("CHECKOUT_STRICT_WRITEBACK"),

		InferenceProvider: strings.ToLower(v.GetString("INFERENCE_PROVIDER")),
		ReplicateAPIToken: v.GetString("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:  v.GetString("REPLICATE_BASE_URL"),
		ReplicateModel:    v.GetString("REPLICATE_MODEL"),
		GeminiAPIKey:      v.GetString("GEMINI_API_KEY"),
		GeminiModel:       v.GetString("GEMINI_MODEL"),
		InferenceTimeout:  v.GetDuration("INFERENCE_TIMEOUT"),
		PipelineTimeout:   v.GetDuration("PIPELINE_TIMEOUT"),
		MaxUploadBytes:    v.GetInt64("MAX_UPLOAD_BYTES"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),

		DatabaseURL: v.GetString("DATABASE_URL"),
		AutoMigrate: v.GetBool("AUTO_MIGRATE"),

		Port:        v.GetString("PORT"),
		Environment: v.GetString("ENVIRONMENT"),
		BaseURL:     strings.TrimSuffix(v.GetString("BASE_URL"), "/"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
	}

	if cfg.CheckoutSuccessURL == "" {
		cfg.CheckoutSuccessURL = cfg.BaseURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}"
	}
	if cfg.CheckoutCancelURL == "" {
		cfg.CheckoutCancelURL = cfg.BaseURL + "/dashboard?canceled=true"
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.PriceInCents <= 0 {
		return fmt.Errorf("PRICE_IN_CENTS must be positive")
	}

	switch c.StorageBackend {
	case "supabase":
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabaseServiceRoleKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required")
		}
	case "minio":
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.InferenceProvider {
	case "replicate":
		if c.ReplicateAPIToken == "" {
			return fmt.Errorf("REPLICATE_API_TOKEN is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("unknown INFERENCE_PROVIDER %q", c.InferenceProvider)
	}

	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive")
	}
	if c.PipelineTimeout < c.InferenceTimeout {
		return fmt.Errorf("PIPELINE_TIMEOUT must be at least INFERENCE_TIMEOUT")
	}
	return nil
}

// InputURLTTL is the expiry for the signed input reference handed to the
// inference provider. It must outlive the provider call.
func (c *Config) InputURLTTL() time.Duration {
	floor := c.InferenceTimeout + time.Minute
	if c.SignedURLTTL > floor {
		return c.SignedURLTTL
	}
	return floor
}

// ReservationLease is how long a processing project can sit untouched before
// a new generate request may reclaim it. A live run finishes within the
// pipeline timeout plus its detached finalize or release write.
func (c *Config) ReservationLease() time.Duration {
	return c.PipelineTimeout + time.Minute
}
