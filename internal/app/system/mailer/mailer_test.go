package mailer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/handspm/internal/testutil"
	"github.com/dalemusser/waffle/pantry/email"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// newTestDispatcher returns a dispatcher whose workers are never started,
// so queued mail stays pending in store.
func newTestDispatcher(store email.QueueStore, capacity int) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Sender:   NewSender(Config{Host: "localhost", Port: 1025, From: "noreply@example.com"}),
		Store:    store,
		Capacity: capacity,
		Timeout:  time.Second,
	}, zap.NewNop())
}

func TestBuildDecisionEmail(t *testing.T) {
	e := BuildDecisionEmail(DecisionEmailData{
		SiteName:      "HANDS",
		RecipientName: "王小明",
		KindLabel:     "電子券",
		Approved:      true,
		Code:          "VC-001",
		ApproverName:  "陳主管",
	})
	if e.Subject != "[HANDS] 您的電子券申請已核准" {
		t.Errorf("Subject = %q", e.Subject)
	}
	for _, want := range []string{"VC-001", "陳主管", "王小明"} {
		if !strings.Contains(e.TextBody, want) || !strings.Contains(e.HTMLBody, want) {
			t.Errorf("bodies missing %q", want)
		}
	}
}

func TestBuildDecisionEmail_RejectedHasNoCode(t *testing.T) {
	e := BuildDecisionEmail(DecisionEmailData{SiteName: "HANDS", KindLabel: "補點"})
	if !strings.Contains(e.Subject, "已駁回") {
		t.Errorf("Subject = %q", e.Subject)
	}
	if strings.Contains(e.TextBody, "券號") {
		t.Error("rejected email should not mention a code")
	}
}

func TestBuildCustomEmail_KeepsSanitizedHTML(t *testing.T) {
	e := BuildCustomEmail("HANDS", "hi", "<p>內容</p>")
	if !strings.Contains(e.HTMLBody, "<p>內容</p>") {
		t.Errorf("HTML body lost content: %q", e.HTMLBody)
	}
}

func TestDispatcher_EnqueueStoresPendingMessage(t *testing.T) {
	store := email.NewMemoryQueueStore()
	d := newTestDispatcher(store, 10)

	if !d.Enqueue(Email{To: "a@example.com", Subject: "主旨", TextBody: "hello", HTMLBody: "<p>hello</p>"}) {
		t.Fatal("Enqueue returned false")
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	pending, err := store.List(ctx, email.QueueFilter{Status: email.EmailStatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	msg := pending[0].Message
	if len(msg.To) != 1 || msg.To[0] != "a@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if msg.Subject != "主旨" || msg.TextBody != "hello" || msg.HTMLBody != "<p>hello</p>" {
		t.Errorf("message = %+v", msg)
	}
}

func TestDispatcher_RejectsBlankRecipient(t *testing.T) {
	store := email.NewMemoryQueueStore()
	d := newTestDispatcher(store, 10)

	if d.Enqueue(Email{To: "  ", Subject: "x", TextBody: "x"}) {
		t.Error("blank recipient should be rejected")
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if n, _ := d.Backlog(ctx); n != 0 {
		t.Errorf("backlog = %d, want 0", n)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := newTestDispatcher(email.NewMemoryQueueStore(), 2)

	for i, want := range []bool{true, true, false} {
		if got := d.Enqueue(Email{To: "a@example.com", TextBody: "x"}); got != want {
			t.Errorf("Enqueue #%d = %v, want %v", i, got, want)
		}
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := d.Backlog(ctx)
	if err != nil {
		t.Fatalf("Backlog: %v", err)
	}
	if n != 2 {
		t.Errorf("backlog = %d, want 2", n)
	}
}

func TestDispatcher_StopWithoutStart(t *testing.T) {
	d := newTestDispatcher(nil, 0)
	d.Stop()
	d.Start()
	d.Stop()
}

func TestRedisStore_QueuesAcrossDispatchers(t *testing.T) {
	rdb := testutil.RequireRedis(t)
	prefix := "handspm:test:mail:" + uuid.NewString()[:8] + ":"

	ctx, cancel := testutil.TestContext()
	defer cancel()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	})

	first := newTestDispatcher(NewRedisStore(rdb, prefix), 10)
	if !first.Enqueue(Email{To: "a@example.com", Subject: "one", TextBody: "x"}) {
		t.Fatal("Enqueue returned false")
	}

	// A second process sharing the prefix sees the same backlog.
	store := NewRedisStore(rdb, prefix)
	second := newTestDispatcher(store, 10)
	n, err := second.Backlog(ctx)
	if err != nil {
		t.Fatalf("Backlog: %v", err)
	}
	if n != 1 {
		t.Fatalf("backlog = %d, want 1", n)
	}

	next, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if next == nil || next.Message.Subject != "one" {
		t.Fatalf("Dequeue = %+v", next)
	}
	if next.Message.To[0] != "a@example.com" {
		t.Errorf("To = %v", next.Message.To)
	}
}
