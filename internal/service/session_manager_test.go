package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/modules"
	"career-compass/internal/repository"
)

func newSessionTestManager(t *testing.T) (*SessionManager, *repository.StorageRouter) {
	t.Helper()
	catalog, err := modules.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	router := repository.NewStorageRouter(repository.NewMemoryStore(), repository.NewMemoryStore(), "device-1")
	return NewSessionManager(router, catalog, zap.NewNop()), router
}

func TestStartNew(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()

	sid, err := m.StartNew(ctx, id, "career-intro")
	if err != nil || sid != modules.DefaultCanonicalSession {
		t.Fatalf("instant module should reuse canonical session, got %q %v", sid, err)
	}

	a, _ := m.StartNew(ctx, id, "values-deep-dive")
	b, _ := m.StartNew(ctx, id, "values-deep-dive")
	if a == b {
		t.Fatalf("expected unique session ids, got %s twice", a)
	}
	if _, err := ulid.ParseStrict(a); err != nil {
		t.Fatalf("session id is not a ulid: %v", err)
	}

	if list, _ := m.ListSessions(ctx, id, "values-deep-dive"); len(list) != 0 {
		t.Fatalf("StartNew must not persist, got %d sessions", len(list))
	}
	if _, err := m.StartNew(ctx, id, "nope"); !errors.Is(err, domain.ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
}

func TestEnterPolicy(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()
	clock := &stepClock{t: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)}
	m.now = clock.now

	entry, err := m.Enter(ctx, id, "values-deep-dive")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if entry.NeedsChoice || entry.SessionID == "" {
		t.Fatalf("first entry should start a session directly: %+v", entry)
	}

	for _, sid := range []string{"old", "new"} {
		if _, err := m.AppendMessage(ctx, id, "values-deep-dive", sid, user("hola "+sid)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entry, err = m.Enter(ctx, id, "values-deep-dive")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !entry.NeedsChoice || len(entry.Sessions) != 2 || entry.Sessions[0].SessionID != "new" {
		t.Fatalf("expected choice between sessions, most recent first: %+v", entry)
	}

	instant, err := m.Enter(ctx, id, "work-style-cards")
	if err != nil {
		t.Fatalf("enter instant: %v", err)
	}
	if instant.NeedsChoice || instant.SessionID != "cards" || instant.Progress != nil {
		t.Fatalf("unexpected instant entry: %+v", instant)
	}
	if _, err := m.SaveInteraction(ctx, id, "work-style-cards", "cards", domain.Payload(`{"picked":[1]}`), false); err != nil {
		t.Fatalf("save interaction: %v", err)
	}
	instant, _ = m.Enter(ctx, id, "work-style-cards")
	if instant.Progress == nil || string(instant.Progress.Payload) != `{"picked":[1]}` {
		t.Fatalf("instant module should resume canonical progress: %+v", instant.Progress)
	}
}

func TestAppendMessageKeepsOrderAndMonotonicLastUpdated(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()

	times := []time.Time{
		time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 7, 1, 10, 5, 0, 0, time.UTC),
		time.Date(2026, 7, 1, 10, 2, 0, 0, time.UTC), // reloj que retrocede
	}
	var last time.Time
	for i, at := range times {
		at := at
		m.now = func() time.Time { return at }
		p, err := m.AppendMessage(ctx, id, "values-deep-dive", "s1", user(fmt.Sprintf("m%d", i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if p.LastUpdated.Before(last) {
			t.Fatalf("last_updated decreased: %s < %s", p.LastUpdated, last)
		}
		last = p.LastUpdated
	}

	rec, err := m.Resume(ctx, id, "values-deep-dive", "s1")
	if err != nil || rec == nil {
		t.Fatalf("resume: %v %v", rec, err)
	}
	p, err := domain.ModuleProgressFromRecord(*rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Messages) != 3 || p.Messages[0].Content != "m0" || p.Messages[2].Content != "m2" {
		t.Fatalf("messages not appended in order: %+v", p.Messages)
	}
	if !p.CreatedAt.Equal(times[0]) || !p.LastUpdated.Equal(times[1]) {
		t.Fatalf("unexpected timestamps created=%s updated=%s", p.CreatedAt, p.LastUpdated)
	}
}

func TestAppendMessageValidation(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()

	if _, err := m.AppendMessage(ctx, id, "values-tradeoffs", "s", user("x")); !errors.Is(err, domain.ErrModuleKindMismatch) {
		t.Fatalf("expected ErrModuleKindMismatch, got %v", err)
	}
	if _, err := m.AppendMessage(ctx, id, "values-deep-dive", "s", domain.Message{Role: "system", Content: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for role, got %v", err)
	}
	if _, err := m.AppendMessage(ctx, id, "values-deep-dive", "", user("x")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for session, got %v", err)
	}
	if _, err := m.SaveInteraction(ctx, id, "values-deep-dive", "s", nil, false); !errors.Is(err, domain.ErrModuleKindMismatch) {
		t.Fatalf("expected ErrModuleKindMismatch, got %v", err)
	}
	if rec, err := m.Resume(ctx, id, "values-deep-dive", "missing"); err != nil || rec != nil {
		t.Fatalf("expected nil,nil for missing session, got %v %v", rec, err)
	}
}

func TestSaveInteractionAndComplete(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := domain.AuthenticatedIdentity("acct-1")

	if _, _, err := m.Complete(ctx, id, "values-tradeoffs", "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	payload := domain.Payload("opaque\x00bytes")
	if _, err := m.SaveInteraction(ctx, id, "values-tradeoffs", "s1", payload, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, changed, err := m.Complete(ctx, id, "values-tradeoffs", "s1")
	if err != nil || !rec.Completed || !changed {
		t.Fatalf("complete: %+v %v %v", rec, changed, err)
	}
	again, changed, err := m.Complete(ctx, id, "values-tradeoffs", "s1")
	if err != nil || !again.Completed || changed {
		t.Fatalf("second complete must report no transition: %+v %v %v", again, changed, err)
	}
	if !again.LastUpdated.Equal(rec.LastUpdated) {
		t.Fatalf("second complete must not write: %s != %s", again.LastUpdated, rec.LastUpdated)
	}

	got, err := router.GetInteractiveProgress(ctx, id, "values-tradeoffs", "s1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if string(got.Data) != string(payload) || !got.Completed {
		t.Fatalf("unexpected stored progress: %+v", got)
	}

	// Un guardado posterior no des-completa la sesion.
	if _, err := m.SaveInteraction(ctx, id, "values-tradeoffs", "s1", domain.Payload(`{}`), false); err != nil {
		t.Fatal(err)
	}
	got, _ = router.GetInteractiveProgress(ctx, id, "values-tradeoffs", "s1")
	if !got.Completed {
		t.Fatalf("completed flag must be sticky")
	}
}

func TestAppendMessageConcurrent(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.AppendMessage(ctx, id, "values-deep-dive", "s1", user(fmt.Sprintf("m%d", i))); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	p, err := router.GetModuleProgress(ctx, id, "values-deep-dive", "s1")
	if err != nil || p == nil {
		t.Fatalf("get: %v %v", p, err)
	}
	if len(p.Messages) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(p.Messages))
	}
}

func TestSessionLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	m, router := newSessionTestManager(t)
	id := router.DeviceIdentity()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", i%5)
			if _, err := m.AppendMessage(ctx, id, "values-deep-dive", sid, user("hola")); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if _, _, err := m.Complete(ctx, id, "values-deep-dive", "s0"); err != nil {
		t.Fatal(err)
	}

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no retained session locks, got %d", n)
	}
}
