// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// MinSessionKeyLen is the shortest session signing key accepted.
const MinSessionKeyLen = 32

// appConfigKeys defines the configuration keys for HandsPM.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: HANDSPM_MONGO_URI, HANDSPM_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "backend", Default: BackendMongo, Desc: "Document backend: 'mongo' or 'memory'"},
	{Name: "mongo_uri", Default: "mongodb://localhost:27017/?replicaSet=rs0", Desc: "MongoDB connection URI (replica set required)"},
	{Name: "mongo_database", Default: "handspm", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "handspm-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "168h", Desc: "Session cookie lifetime"},

	{Name: "redis_addr", Default: "", Desc: "Redis address for shared alert dedupe (blank = in-process)"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank disables email)"},
	{Name: "mail_smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@example.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "HandsPM", Desc: "From display name"},
	{Name: "mail_queue", Default: 100, Desc: "Outgoing mail queue capacity"},

	{Name: "site_name", Default: "HandsPM", Desc: "Site name used in emails"},
	{Name: "timezone", Default: "Asia/Taipei", Desc: "IANA time zone for schedule dates"},

	{Name: "audit_log_mode", Default: auditlog.ModeAll, Desc: "System log: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "presence_timeout", Default: "5m", Desc: "Mark users offline after this long without a heartbeat"},
	{Name: "notify_retry_interval", Default: "30s", Desc: "How often failed notification writes are retried"},

	{Name: "timeout_short", Default: "5s", Desc: "Budget for single-document backend calls"},
	{Name: "timeout_medium", Default: "10s", Desc: "Budget for list queries"},
	{Name: "timeout_long", Default: "30s", Desc: "Budget for multi-collection operations"},
	{Name: "timeout_maintenance", Default: "60s", Desc: "Budget for bulk clears and sweeps"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, HANDSPM_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "HANDSPM", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		Backend:          strings.ToLower(strings.TrimSpace(appValues.String("backend"))),
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 7*24*time.Hour),

		RedisAddr: appValues.String("redis_addr"),

		// Email/SMTP
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		MailQueue:    appValues.Int("mail_queue"),

		SiteName: appValues.String("site_name"),
		Timezone: appValues.String("timezone"),

		AuditLogMode: appValues.String("audit_log_mode"),

		PresenceTimeout:     appValues.Duration("presence_timeout", 5*time.Minute),
		NotifyRetryInterval: appValues.Duration("notify_retry_interval", 30*time.Second),

		TimeoutShort:       appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium:      appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:        appValues.Duration("timeout_long", 30*time.Second),
		TimeoutMaintenance: appValues.Duration("timeout_maintenance", 60*time.Second),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is only checked when the mongo backend is selected.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.Backend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if strings.TrimSpace(appCfg.MongoDatabase) == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case BackendMemory:
		if coreCfg != nil && coreCfg.Env == "prod" {
			logger.Warn("memory backend selected in prod; all data is lost on restart")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", appCfg.Backend, BackendMongo, BackendMemory)
	}

	if len(appCfg.SessionKey) < MinSessionKeyLen {
		return fmt.Errorf("session_key must be at least %d characters", MinSessionKeyLen)
	}

	if _, err := time.LoadLocation(appCfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", appCfg.Timezone, err)
	}

	switch appCfg.AuditLogMode {
	case "", auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
	default:
		return fmt.Errorf("invalid audit_log_mode %q", appCfg.AuditLogMode)
	}

	if appCfg.MailSMTPHost != "" && (appCfg.MailSMTPPort <= 0 || appCfg.MailFrom == "") {
		return fmt.Errorf("mail_smtp_port and mail_from are required when mail_smtp_host is set")
	}

	if appCfg.PresenceTimeout <= 0 {
		return fmt.Errorf("presence_timeout must be positive")
	}
	return nil
}
