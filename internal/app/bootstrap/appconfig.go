// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Backend kinds for AppConfig.Backend.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// framework-level settings (ports, TLS, logging, CORS); everything below
// is specific to HandsPM.
type AppConfig struct {
	// Document backend: "mongo" for production, "memory" for demos and
	// local development without a database.
	Backend string

	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (must point at a replica set for change streams)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: handspm-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Redis address for the shared alert dedupe guard. Blank keeps the
	// guard in process memory.
	RedisAddr string

	// Email/SMTP configuration. A blank host disables mail entirely.
	MailSMTPHost string
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string
	MailQueue    int // dispatcher queue capacity

	// Site name shown in email layouts.
	SiteName string

	// IANA zone used to decide "today" for schedules and countdowns.
	Timezone string

	// System log mode: 'all' (db+log), 'db', 'log', or 'off'.
	AuditLogMode string

	// Presence: users silent for longer than PresenceTimeout are marked
	// offline by the sweep job.
	PresenceTimeout time.Duration

	// How often queued notification writes are retried.
	NotifyRetryInterval time.Duration

	// Backend call budgets.
	TimeoutShort       time.Duration
	TimeoutMedium      time.Duration
	TimeoutLong        time.Duration
	TimeoutMaintenance time.Duration
}
