// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"

	announcementsfeature "github.com/dalemusser/handspm/internal/app/features/announcements"
	"github.com/dalemusser/handspm/internal/app/features/apierr"
	auditlogfeature "github.com/dalemusser/handspm/internal/app/features/auditlog"
	dashboardfeature "github.com/dalemusser/handspm/internal/app/features/dashboard"
	emailfeature "github.com/dalemusser/handspm/internal/app/features/email"
	healthfeature "github.com/dalemusser/handspm/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/handspm/internal/app/features/heartbeat"
	livefeature "github.com/dalemusser/handspm/internal/app/features/live"
	loginfeature "github.com/dalemusser/handspm/internal/app/features/login"
	logoutfeature "github.com/dalemusser/handspm/internal/app/features/logout"
	maintenancefeature "github.com/dalemusser/handspm/internal/app/features/maintenance"
	notificationsfeature "github.com/dalemusser/handspm/internal/app/features/notifications"
	projectsfeature "github.com/dalemusser/handspm/internal/app/features/projects"
	requestsfeature "github.com/dalemusser/handspm/internal/app/features/requests"
	schedulesfeature "github.com/dalemusser/handspm/internal/app/features/schedules"
	systemusersfeature "github.com/dalemusser/handspm/internal/app/features/systemusers"
	userinfofeature "github.com/dalemusser/handspm/internal/app/features/userinfo"
	vouchersfeature "github.com/dalemusser/handspm/internal/app/features/vouchers"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so deps.App is fully wired.
//
// Everything the browser client talks to lives under /api. /health and
// /metrics sit at the root for load balancers and Prometheus.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	app := deps.App
	if app == nil || app.Users == nil {
		return nil, errors.New("bootstrap: services not started")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	// Reload the actor on every request so role changes and deletions take
	// effect immediately.
	sessionMgr.SetLoader(app.Users)

	r := chi.NewRouter()
	r.Use(metrics.Middleware(routePattern))
	r.Use(sessionMgr.LoadSessionUser)

	healthHandler := healthfeature.NewHandler(pingerFor(deps), appCfg.Backend, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", promhttp.Handler())
	userinfofeature.MountRoutes(r, userinfofeature.NewHandler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(ar chi.Router) {
			loginfeature.MountRoutes(ar, loginfeature.NewHandler(app.Users, app.Notifier, app.Audit, sessionMgr, app.Limiter, logger))
			logoutfeature.MountRoutes(ar, logoutfeature.NewHandler(app.Users, app.Audit, sessionMgr, logger), sessionMgr)
			heartbeatfeature.MountRoutes(ar, heartbeatfeature.NewHandler(app.Users, logger), sessionMgr)
		})

		liveHandler := livefeature.NewHandler(deps.Backend, app.Guard, logger)
		api.Mount("/live", livefeature.Routes(liveHandler, sessionMgr))

		dashboardHandler := dashboardfeature.NewHandler(deps.Backend, logger)
		api.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, sessionMgr))

		projectsHandler := projectsfeature.NewHandler(app.Projects, app.Users, app.Notifier, app.Audit, logger)
		api.Mount("/projects", projectsfeature.Routes(projectsHandler, sessionMgr))

		requestsHandler := requestsfeature.NewHandler(app.Workflow, logger)
		api.Mount("/requests", requestsfeature.Routes(requestsHandler, sessionMgr))

		vouchersHandler := vouchersfeature.NewHandler(app.Vouchers, app.Audit, logger)
		api.Mount("/vouchers", vouchersfeature.Routes(vouchersHandler, sessionMgr))

		schedulesHandler := schedulesfeature.NewHandler(app.Schedules, logger)
		api.Mount("/schedules", schedulesfeature.Routes(schedulesHandler, sessionMgr))

		announcementsfeature.NewHandler(app.Announcements, app.Notifier, logger).MountRoutes(api, sessionMgr)

		notificationsHandler := notificationsfeature.NewHandler(app.Notifications, logger)
		api.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))

		usersHandler := systemusersfeature.NewHandler(app.Users, app.Audit, logger)
		api.Mount("/users", systemusersfeature.Routes(usersHandler, sessionMgr))

		maintenanceHandler := maintenancefeature.NewHandler(app.Syslog, app.Notifications, app.Audit, logger)
		api.Mount("/maintenance", maintenancefeature.Routes(maintenanceHandler, sessionMgr))

		var queue emailfeature.Queue
		if app.Mail != nil {
			queue = app.Mail
		}
		emailHandler := emailfeature.NewHandler(queue, appCfg.SiteName, logger)
		api.Mount("/email", emailfeature.Routes(emailHandler, sessionMgr))

		logsHandler := auditlogfeature.NewHandler(app.Syslog, app.Location, logger)
		api.Mount("/logs", auditlogfeature.Routes(logsHandler, sessionMgr))

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			apierr.Error(w, http.StatusNotFound, "找不到資源")
		})
	})

	return r, nil
}

// routePattern labels request metrics with the matched chi pattern so ids
// in paths do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// pingerFor returns the backend's own Ping when it has one.
func pingerFor(deps DBDeps) healthfeature.Pinger {
	if p, ok := deps.Backend.(healthfeature.Pinger); ok {
		return p
	}
	return pingFunc(func(ctx context.Context) error { return ctx.Err() })
}
