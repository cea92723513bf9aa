// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the Telegram
// transport, intake, Bitrix24, HTTP server, storage, logging and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// Transport modes.
const (
	TransportPoll    = "poll"
	TransportWebhook = "webhook"
)

// TelegramConfig defines the Bot API connection and update delivery.
type TelegramConfig struct {
	Token         string        // BOT_TOKEN
	APIBase       string        // TELEGRAM_API_BASE
	SupportChatID int64         // SUPPORT_CHAT_ID, the staff chat
	AdminIDs      []int64       // ADMIN_IDS
	Transport     string        // TRANSPORT_MODE poll|webhook
	PollTimeout   time.Duration // POLL_TIMEOUT
	WebhookURL    string        // WEBHOOK_URL, public base registered with setWebhook
	WebhookPath   string        // WEBHOOK_PATH
	WebhookSecret string        // WEBHOOK_SECRET
	Timeout       time.Duration // TELEGRAM_TIMEOUT
}

// IntakeConfig defines the submission store.
type IntakeConfig struct {
	IDPrefix       string          // ID_PREFIX
	ExportLookback int             // EXPORT_LOOKBACK, history window size
	IndexCapacity  int             // INDEX_CAPACITY, 0 = unbounded
	StaffLang      domain.Language // STAFF_LANG
}

// BitrixConfig defines the Bitrix24 bridge.
type BitrixConfig struct {
	WebhookBase   string             // BITRIX_WEBHOOK_BASE
	ResponsibleID int64              // BITRIX_RESPONSIBLE_ID
	Mode          domain.BackendMode // BITRIX_MODE TASKS|CRM
	EntityTypeID  int64              // BITRIX_SMART_ENTITY_ID
	CategoryID    string             // BITRIX_SMART_CATEGORY_ID
	StageID       string             // BITRIX_SMART_STAGE_ID
	TaskTimeout   time.Duration      // BITRIX_TASK_TIMEOUT
	CRMTimeout    time.Duration      // BITRIX_CRM_TIMEOUT
	RPS           float64            // BITRIX_RPS
	Burst         int                // BITRIX_BURST
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "hr-intake-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Telegram TelegramConfig
	Intake   IntakeConfig
	Bitrix   BitrixConfig

	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	APIBasePath       string        // base path for the ops API
	OpsAPIToken       string        // bearer token; empty disables the ops API

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Storage
	DBPath   string        // update log; empty or ":memory:" keeps it in memory
	DedupTTL time.Duration // how long a handled update id is remembered

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Variables
// already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	admins, adminsErr := parseInt64List(getenv("ADMIN_IDS", ""))

	cfg := Config{
		Telegram: TelegramConfig{
			Token:         strings.TrimSpace(getenv("BOT_TOKEN", "")),
			APIBase:       getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
			SupportChatID: getint64("SUPPORT_CHAT_ID", -1000000000000),
			AdminIDs:      admins,
			Transport:     strings.ToLower(getenv("TRANSPORT_MODE", TransportPoll)),
			PollTimeout:   getdur("POLL_TIMEOUT", 30*time.Second),
			WebhookURL:    strings.TrimRight(getenv("WEBHOOK_URL", ""), "/"),
			WebhookPath:   normalizeBasePath(getenv("WEBHOOK_PATH", "/telegram/webhook")),
			WebhookSecret: getenv("WEBHOOK_SECRET", ""),
			Timeout:       getdur("TELEGRAM_TIMEOUT", 15*time.Second),
		},
		Intake: IntakeConfig{
			IDPrefix:       strings.TrimSpace(getenv("ID_PREFIX", "HR")),
			ExportLookback: getint("EXPORT_LOOKBACK", 200),
			IndexCapacity:  getint("INDEX_CAPACITY", 0),
			StaffLang:      domain.Language(strings.ToUpper(getenv("STAFF_LANG", string(domain.LangRU)))),
		},
		Bitrix: BitrixConfig{
			WebhookBase:   strings.TrimSpace(getenv("BITRIX_WEBHOOK_BASE", "")),
			ResponsibleID: getint64("BITRIX_RESPONSIBLE_ID", 1),
			Mode:          domain.BackendMode(strings.ToUpper(getenv("BITRIX_MODE", string(domain.ModeTasks)))),
			EntityTypeID:  getint64("BITRIX_SMART_ENTITY_ID", 0),
			CategoryID:    strings.TrimSpace(getenv("BITRIX_SMART_CATEGORY_ID", "0")),
			StageID:       strings.TrimSpace(getenv("BITRIX_SMART_STAGE_ID", "")),
			TaskTimeout:   getdur("BITRIX_TASK_TIMEOUT", 8*time.Second),
			CRMTimeout:    getdur("BITRIX_CRM_TIMEOUT", 10*time.Second),
			RPS:           getfloat("BITRIX_RPS", 2.0),
			Burst:         getint("BITRIX_BURST", 2),
		},

		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		OpsAPIToken:       getenv("OPS_API_TOKEN", ""),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Storage
		DBPath:   getenv("DB_PATH", ":memory:"),
		DedupTTL: getdur("UPDATE_DEDUP_TTL", 24*time.Hour),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "hr-intake-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	if cfg.Telegram.Token == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	if adminsErr != nil {
		return cfg, fmt.Errorf("ADMIN_IDS: %w", adminsErr)
	}
	switch cfg.Telegram.Transport {
	case TransportPoll:
	case TransportWebhook:
		if cfg.Telegram.WebhookSecret == "" {
			return cfg, errors.New("WEBHOOK_SECRET must be set when TRANSPORT_MODE=webhook")
		}
	default:
		return cfg, errors.New("TRANSPORT_MODE must be one of: poll, webhook")
	}
	if cfg.Telegram.PollTimeout < 0 || cfg.Telegram.Timeout <= 0 {
		return cfg, errors.New("POLL_TIMEOUT must be >= 0 and TELEGRAM_TIMEOUT > 0")
	}
	if cfg.Intake.IDPrefix == "" {
		return cfg, errors.New("ID_PREFIX must not be empty")
	}
	if cfg.Intake.ExportLookback < 1 {
		return cfg, errors.New("EXPORT_LOOKBACK must be >= 1")
	}
	if cfg.Intake.IndexCapacity < 0 {
		return cfg, errors.New("INDEX_CAPACITY must be >= 0")
	}
	if _, ok := domain.ParseLanguage(string(cfg.Intake.StaffLang)); !ok {
		return cfg, errors.New("STAFF_LANG must be one of: RU, UZ, EN")
	}
	switch cfg.Bitrix.Mode {
	case domain.ModeTasks:
	case domain.ModeCRM:
		if cfg.Bitrix.WebhookBase != "" && cfg.Bitrix.EntityTypeID <= 0 {
			return cfg, errors.New("BITRIX_SMART_ENTITY_ID must be set when BITRIX_MODE=CRM")
		}
	default:
		return cfg, errors.New("BITRIX_MODE must be one of: TASKS, CRM")
	}
	if cfg.Bitrix.TaskTimeout <= 0 || cfg.Bitrix.CRMTimeout <= 0 {
		return cfg, errors.New("BITRIX_TASK_TIMEOUT and BITRIX_CRM_TIMEOUT must be positive")
	}
	if cfg.Bitrix.RPS < 0 || cfg.Bitrix.Burst < 1 {
		return cfg, errors.New("BITRIX_RPS must be >= 0 and BITRIX_BURST >= 1")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.DedupTTL <= 0 {
		return cfg, errors.New("UPDATE_DEDUP_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseInt64List parses a comma-separated list of integers, skipping blanks.
func parseInt64List(s string) ([]int64, error) {
	var out []int64
	for _, p := range splitCSV(s) {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
