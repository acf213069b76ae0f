package auditlog

import (
	"context"
	"testing"

	"github.com/dalemusser/handspm/internal/app/store/syslog"
	"github.com/dalemusser/handspm/internal/app/system/docstore/memstore"
	"github.com/dalemusser/handspm/internal/domain/models"
	"go.uber.org/zap"
)

func TestRecord_Modes(t *testing.T) {
	tests := []struct {
		mode   string
		wantDB int
	}{
		{ModeAll, 1},
		{ModeDB, 1},
		{ModeLog, 0},
		{ModeOff, 0},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			ctx := context.Background()
			st := syslog.New(memstore.New())
			l := New(st, zap.NewNop(), tt.mode)
			l.Record(ctx, ActionBroadcast, "hello", "u1", "Ann")
			got, err := st.Recent(ctx, 0)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != tt.wantDB {
				t.Errorf("stored %d entries, want %d", len(got), tt.wantDB)
			}
		})
	}
}

func TestLoginFailed_RecordsOnlyEmployeeID(t *testing.T) {
	ctx := context.Background()
	st := syslog.New(memstore.New())
	New(st, zap.NewNop(), ModeAll).LoginFailed(ctx, "E404")

	got, _ := st.Recent(ctx, 1)
	if len(got) != 1 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Action != ActionLoginFailed || got[0].Details != "ID: E404" {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestRegistered(t *testing.T) {
	ctx := context.Background()
	st := syslog.New(memstore.New())
	New(st, zap.NewNop(), "").Registered(ctx, models.User{ID: "u1", EmployeeID: "A001", DisplayName: "Ann", Role: models.RoleAdmin})
	got, _ := st.Recent(ctx, 1)
	if len(got) != 1 || got[0].Details != "ID: A001, 權限: 管理員" {
		t.Errorf("entries = %+v", got)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Record(context.Background(), ActionLogin, "", "", "")
}
