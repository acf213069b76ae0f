package testutil

import (
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/app/notify"
	"github.com/dalemusser/handspm/internal/app/store/syslog"
	userstore "github.com/dalemusser/handspm/internal/app/store/users"
	"github.com/dalemusser/handspm/internal/app/system/auditlog"
	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/docstore/memstore"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Services bundles the stores and helpers most handlers need, all on one
// in-memory backend.
type Services struct {
	DB       *memstore.Store
	Log      *zap.Logger
	Users    *userstore.Store
	Syslog   *syslog.Store
	Audit    *auditlog.Logger
	Notifier *notify.Notifier
	Fixtures *Fixtures
}

// NewServices wires Services on a fresh backend. Audit entries go to the
// logs collection only.
func NewServices(t *testing.T) *Services {
	t.Helper()
	db := SetupTestDB(t)
	logger := zap.NewNop()
	logs := syslog.New(db)
	audit := auditlog.New(logs, logger, auditlog.ModeDB)
	return &Services{
		DB:       db,
		Log:      logger,
		Users:    userstore.New(db).WithBcryptCost(bcrypt.MinCost),
		Syslog:   logs,
		Audit:    audit,
		Notifier: notify.New(db, logger, audit),
		Fixtures: NewFixtures(t, db),
	}
}

// NewSessionManager returns an insecure cookie session manager for tests.
func NewSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	return sm
}
