// internal/app/bootstrap/services.go
package bootstrap

import (
	"time"

	"github.com/dalemusser/handspm/internal/app/notify"
	announcementstore "github.com/dalemusser/handspm/internal/app/store/announcements"
	notificationstore "github.com/dalemusser/handspm/internal/app/store/notifications"
	projectstore "github.com/dalemusser/handspm/internal/app/store/projects"
	schedulestore "github.com/dalemusser/handspm/internal/app/store/schedules"
	"github.com/dalemusser/handspm/internal/app/store/syslog"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	voucherstore "github.com/dalemusser/handspm/internal/app/store/vouchers"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/dedupe"
	"github.com/dalemusser/handspm/internal/app/system/mailer"
	"github.com/dalemusser/handspm/internal/app/system/ratelimit"
	"github.com/dalemusser/handspm/internal/app/system/tasks"
	"github.com/dalemusser/handspm/internal/app/workflow"
	"go.uber.org/zap"
)

// Services is the application graph shared by Startup, BuildHandler and
// Shutdown.
type Services struct {
	Users         *userstore.Store
	Projects      *projectstore.Store
	Schedules     *schedulestore.Store
	Announcements *announcementstore.Store
	Vouchers      *voucherstore.Store
	Notifications *notificationstore.Store
	Syslog        *syslog.Store

	Audit    *auditlog.Logger
	Notifier *notify.Notifier
	Workflow *workflow.Service

	Mail     *mailer.Dispatcher // nil when mail is disabled
	Guard    dedupe.Guard
	Limiter  *ratelimit.LoginLimiter
	Runner   *tasks.Runner
	Location *time.Location
}

// build wires every service over deps. It starts nothing.
func (s *Services) build(appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	loc, err := time.LoadLocation(appCfg.Timezone)
	if err != nil {
		return err
	}
	s.Location = loc

	b := deps.Backend
	s.Users = userstore.New(b)
	s.Projects = projectstore.New(b)
	s.Schedules = schedulestore.New(b)
	s.Announcements = announcementstore.New(b)
	s.Vouchers = voucherstore.New(b)
	s.Notifications = notificationstore.New(b)
	s.Syslog = syslog.New(b)

	s.Audit = auditlog.New(s.Syslog, logger, appCfg.AuditLogMode)
	s.Notifier = notify.New(b, logger, s.Audit)

	// A nil *Dispatcher must not reach workflow as a non-nil Mailer.
	var mail workflow.Mailer
	if appCfg.MailSMTPHost != "" {
		sender := mailer.NewSender(mailer.Config{
			Host:     appCfg.MailSMTPHost,
			Port:     appCfg.MailSMTPPort,
			User:     appCfg.MailSMTPUser,
			Pass:     appCfg.MailSMTPPass,
			From:     appCfg.MailFrom,
			FromName: appCfg.MailFromName,
			Timeout:  appCfg.TimeoutLong,
		})
		cfg := mailer.DispatcherConfig{
			Sender:   sender,
			Capacity: appCfg.MailQueue,
			Timeout:  appCfg.TimeoutLong,
		}
		if deps.Redis != nil {
			cfg.Store = mailer.NewRedisStore(deps.Redis, "handspm:mail:")
		}
		s.Mail = mailer.NewDispatcher(cfg, logger)
		mail = s.Mail
	} else {
		logger.Info("mail_smtp_host not set; decision emails and /api/email are disabled")
	}
	s.Workflow = workflow.New(b, s.Notifier, s.Audit, mail, appCfg.SiteName, logger)

	if deps.Redis != nil {
		s.Guard = dedupe.NewRedisGuard(deps.Redis, "handspm:dedupe:")
	} else {
		s.Guard = dedupe.NewMemoryGuard(10 * time.Minute)
	}
	s.Limiter = ratelimit.NewLoginLimiter()

	s.Runner = tasks.NewRunner(logger,
		tasks.PresenceSweepJob(s.Users, logger, appCfg.PresenceTimeout),
		tasks.NotificationRetryJob(s.Notifier, logger, appCfg.NotifyRetryInterval),
	)
	return nil
}

// start launches the background workers.
func (s *Services) start() {
	if s.Mail != nil {
		s.Mail.Start()
	}
	if s.Runner != nil {
		s.Runner.Start()
	}
}

// stop halts the background workers. Mail sends in flight finish first.
func (s *Services) stop() {
	if s.Runner != nil {
		s.Runner.Stop()
	}
	if s.Mail != nil {
		s.Mail.Stop()
	}
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
}
