// Package config loads service-site configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":3000"
	defaultDataFile       = "data/services.json"
	defaultImagesDir      = "public/images"
	defaultImagesURL      = "/images"
	defaultMaxImageBytes  = 5 << 20
	defaultMaxUploadBytes = 50 << 20
	defaultLoginRate      = 5
	defaultSessionTTL     = 12 * time.Hour
	defaultNATSSubject    = "servicesite.catalog"
)

// Config holds service configuration values.
type Config struct {
	ListenAddr string
	LogLevel   string

	DataFile        string
	ImagesDir       string
	ImagesURLPrefix string
	MaxImageBytes   int64
	MaxUploadBytes  int64

	AdminPassword     string
	AdminPasswordHash string
	LoginRate         int
	SessionTTL        time.Duration
	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a reverse proxy that overwrites them.
	TrustProxyHeaders bool

	NATSURL           string
	NATSSubjectPrefix string

	DevMode        bool
	MetricsEnabled bool
	TracesEnabled  bool
	InitCatalog    bool
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:        envOrDefault("SERVICESITE_LISTEN_ADDR", defaultListenAddr),
		LogLevel:          strings.ToLower(envOrDefault("SERVICESITE_LOG_LEVEL", "info")),
		DataFile:          strings.TrimSpace(envOrDefault("SERVICESITE_DATA_FILE", defaultDataFile)),
		ImagesDir:         strings.TrimSpace(envOrDefault("SERVICESITE_IMAGES_DIR", defaultImagesDir)),
		ImagesURLPrefix:   strings.TrimSpace(envOrDefault("SERVICESITE_IMAGES_URL_PREFIX", defaultImagesURL)),
		MaxImageBytes:     int64(envPositiveInt("SERVICESITE_MAX_IMAGE_BYTES", defaultMaxImageBytes)),
		MaxUploadBytes:    int64(envPositiveInt("SERVICESITE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		AdminPassword:     os.Getenv("SERVICESITE_ADMIN_PASSWORD"),
		AdminPasswordHash: strings.TrimSpace(os.Getenv("SERVICESITE_ADMIN_PASSWORD_HASH")),
		LoginRate:         envPositiveInt("SERVICESITE_LOGIN_RATE", defaultLoginRate),
		SessionTTL:        envPositiveDuration("SERVICESITE_SESSION_TTL", defaultSessionTTL),
		TrustProxyHeaders: envBool("SERVICESITE_TRUST_PROXY_HEADERS", false),
		NATSURL:           strings.TrimSpace(envOrDefault("SERVICESITE_NATS_URL", "")),
		NATSSubjectPrefix: strings.Trim(strings.TrimSpace(envOrDefault("SERVICESITE_NATS_SUBJECT_PREFIX", defaultNATSSubject)), "."),
		DevMode:           envBool("SERVICESITE_DEV_MODE", false),
		MetricsEnabled:    envBool("SERVICESITE_METRICS_ENABLED", true),
		TracesEnabled:     envBool("SERVICESITE_TRACES_ENABLED", false),
		InitCatalog:       envBool("SERVICESITE_INIT_CATALOG", true),
	}

	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		return Config{}, fmt.Errorf("SERVICESITE_ADMIN_PASSWORD or SERVICESITE_ADMIN_PASSWORD_HASH is required")
	}
	if cfg.DataFile == "" {
		return Config{}, fmt.Errorf("SERVICESITE_DATA_FILE must not be blank")
	}
	if cfg.ImagesDir == "" {
		return Config{}, fmt.Errorf("SERVICESITE_IMAGES_DIR must not be blank")
	}
	if !strings.HasPrefix(cfg.ImagesURLPrefix, "/") {
		cfg.ImagesURLPrefix = "/" + cfg.ImagesURLPrefix
	}
	cfg.ImagesURLPrefix = strings.TrimRight(cfg.ImagesURLPrefix, "/")
	if cfg.ImagesURLPrefix == "" {
		cfg.ImagesURLPrefix = defaultImagesURL
	}
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = defaultNATSSubject
	}
	if cfg.MaxUploadBytes < cfg.MaxImageBytes {
		cfg.MaxUploadBytes = cfg.MaxImageBytes
	}

	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
