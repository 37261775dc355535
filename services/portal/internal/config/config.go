package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "config.yaml"

const minSessionSecretLength = 16

// Session backends accepted by sessionStore.
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStoreDatabase = "database"
	SessionStoreBolt     = "bolt"
)

// DatabaseURLMemory keeps guests in process instead of opening a database.
const DatabaseURLMemory = "memory"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	LogFormat               string   `yaml:"logFormat"`
	DatabaseURL             string   `yaml:"databaseURL"`
	GuestListPath           string   `yaml:"guestListPath"`
	BriefingPath            string   `yaml:"briefingPath"`
	AdminName               string   `yaml:"adminName"`
	SessionStore            string   `yaml:"sessionStore"`
	SessionBoltPath         string   `yaml:"sessionBoltPath"`
	SessionTTL              string   `yaml:"sessionTTL"`
	SessionPurgeInterval    string   `yaml:"sessionPurgeInterval"`
	SessionSecret           string   `yaml:"sessionSecret"`
	CookieSecure            bool     `yaml:"cookieSecure"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	RSVPStream              string   `yaml:"rsvpStream"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	GenerationProvider      string   `yaml:"generationProvider"`
	GenerationBaseURL       string   `yaml:"generationBaseURL"`
	GenerationAPIKey        string   `yaml:"generationAPIKey"`
	GenerationModel         string   `yaml:"generationModel"`
	GenerationTimeout       string   `yaml:"generationTimeout"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORTAL_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("PORTAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PORTAL_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PORTAL_GUEST_LIST"); v != "" {
		cfg.GuestListPath = v
	}
	if v := os.Getenv("PORTAL_BRIEFING"); v != "" {
		cfg.BriefingPath = v
	}
	if v := os.Getenv("PORTAL_ADMIN_NAME"); v != "" {
		cfg.AdminName = strings.TrimSpace(v)
	}
	if v := os.Getenv("PORTAL_SESSION_STORE"); v != "" {
		cfg.SessionStore = v
	}
	if v := os.Getenv("PORTAL_SESSION_BOLT_PATH"); v != "" {
		cfg.SessionBoltPath = v
	}
	if v := os.Getenv("PORTAL_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("PORTAL_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.CookieSecure = b
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("PORTAL_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("PORTAL_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("GENERATION_TIMEOUT"); v != "" {
		cfg.GenerationTimeout = v
	}
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.SessionStore) == "" {
		cfg.SessionStore = SessionStoreDatabase
	}
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "720h"
	}
	if cfg.SessionPurgeInterval == "" {
		cfg.SessionPurgeInterval = "1h"
	}
	if cfg.GenerationTimeout == "" {
		cfg.GenerationTimeout = "60s"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORTAL_PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.GuestListPath) == "" {
		return errors.New("config: guestListPath is required (set in config.yaml or PORTAL_GUEST_LIST)")
	}
	if len(cfg.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("config: sessionSecret must be at least %d characters (set in config.yaml or SESSION_SECRET)", minSessionSecretLength)
	}
	switch cfg.SessionStore {
	case SessionStoreMemory:
	case SessionStoreDatabase:
		if cfg.DatabaseURL == DatabaseURLMemory {
			return errors.New("config: sessionStore=database needs a SQL databaseURL, not memory")
		}
	case SessionStoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when sessionStore=redis")
		}
	case SessionStoreBolt:
		if strings.TrimSpace(cfg.SessionBoltPath) == "" {
			return errors.New("config: sessionBoltPath is required when sessionStore=bolt")
		}
	default:
		return fmt.Errorf("config: unknown sessionStore %q (memory, redis, database, bolt)", cfg.SessionStore)
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("sessionPurgeInterval", cfg.SessionPurgeInterval); err != nil {
		return err
	}
	if d, err := ParseDuration("generationTimeout", cfg.GenerationTimeout); err != nil {
		return err
	} else if d <= 0 {
		return errors.New("config: generationTimeout must be > 0")
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration field; empty means zero.
func ParseDuration(field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", field, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", field)
	}
	return dur, nil
}
