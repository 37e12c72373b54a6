package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"career-compass/internal/domain"
)

func TestStorageRouter_DispatchesByIdentity(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	remote := NewMemoryStore()
	r := NewStorageRouter(local, remote, "device-1")

	anon := r.DeviceIdentity()
	acct := domain.AuthenticatedIdentity("acct-1")

	if err := r.SaveModuleProgress(ctx, anon, domain.ModuleProgress{
		ModuleID:  "career-chat",
		SessionID: "s1",
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "hola"}},
	}); err != nil {
		t.Fatalf("save anon: %v", err)
	}
	if err := r.SaveModuleProgress(ctx, acct, domain.ModuleProgress{
		ModuleID:  "career-chat",
		SessionID: "s2",
	}); err != nil {
		t.Fatalf("save acct: %v", err)
	}

	if has, _ := local.HasData(ctx, "device-1"); !has {
		t.Fatal("anonymous write should land in the local backend under the device token")
	}
	if has, _ := remote.HasData(ctx, "device-1"); has {
		t.Fatal("anonymous write leaked to remote")
	}
	if has, _ := remote.HasData(ctx, "acct-1"); !has {
		t.Fatal("authenticated write should land in the remote backend under the account id")
	}

	got, err := r.GetModuleProgress(ctx, anon, "career-chat", "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || len(got.Messages) != 1 || got.Messages[0].Content != "hola" {
		t.Fatalf("unexpected progress: %+v", got)
	}

	// El mismo session id no existe para la cuenta.
	missing, err := r.GetModuleProgress(ctx, acct, "career-chat", "s1")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil; got %+v, %v", missing, err)
	}
}

func TestStorageRouter_ZeroIdentityIsThisDevice(t *testing.T) {
	ctx := context.Background()
	local := NewMemoryStore()
	r := NewStorageRouter(local, nil, "device-1")

	if err := r.SaveInsights(ctx, domain.Identity{}, domain.UserInsights{Patterns: []string{"p"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ins, err := local.GetInsights(ctx, "device-1")
	if err != nil || ins == nil {
		t.Fatalf("expected insights under device token, got %v %v", ins, err)
	}
}

func TestStorageRouter_AuthenticatedWithoutRemote(t *testing.T) {
	r := NewStorageRouter(NewMemoryStore(), nil, "device-1")
	_, err := r.ListSnapshots(context.Background(), domain.AuthenticatedIdentity("acct-1"), false)
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestStorageRouter_AuthenticatedWithoutSubject(t *testing.T) {
	r := NewStorageRouter(NewMemoryStore(), NewMemoryStore(), "device-1")
	err := r.SaveProgress(context.Background(), domain.Identity{Kind: domain.IdentityAuthenticated}, domain.ProgressRecord{})
	if !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestStorageRouter_SaveSnapshotStampsOwner(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryStore()
	r := NewStorageRouter(NewMemoryStore(), remote, "device-1")
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	snap := domain.ValueSnapshot{
		ID:          "snap-1",
		OwnerID:     "someone-else",
		Axes:        map[domain.Axis]int{domain.AxisDepthBreadth: 70},
		Reasoning:   map[domain.Axis]domain.AxisReasoning{},
		CreatedAt:   at,
		LastUpdated: at,
	}
	saved, err := r.SaveSnapshot(ctx, domain.AuthenticatedIdentity("acct-1"), snap)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.OwnerID != "acct-1" {
		t.Fatalf("returned owner %q, want acct-1", saved.OwnerID)
	}

	hist, err := remote.ListSnapshots(ctx, "acct-1", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := snap
	want.OwnerID = "acct-1"
	if diff := cmp.Diff([]domain.ValueSnapshot{want}, hist.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestStorageRouter_InteractiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewStorageRouter(NewMemoryStore(), nil, "device-1")
	id := r.DeviceIdentity()
	data := domain.Payload(`{"round":3,"choices":["a","b"]}`)

	if err := r.SaveInteractiveProgress(ctx, id, domain.InteractiveProgress{
		ModuleID: "values-game", SessionID: "main", Data: data, Completed: true,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	list, err := r.ListInteractiveProgress(ctx, id, "values-game")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || string(list[0].Data) != string(data) || !list[0].Completed {
		t.Fatalf("unexpected list: %+v", list)
	}

	// Un registro de juego no se puede leer como chat.
	if _, err := r.GetModuleProgress(ctx, id, "values-game", "main"); err != nil {
		t.Fatalf("kinds are separate collections, expected nil error, got %v", err)
	}
}

func TestPgStore_RequiresOwner(t *testing.T) {
	ctx := context.Background()
	s := NewPgStore(nil)

	checks := map[string]error{
		"get":      func() error { _, err := s.GetProgress(ctx, "", domain.KindModuleProgress, "m", "s"); return err }(),
		"save":     s.SaveProgress(ctx, " ", domain.ProgressRecord{}),
		"list":     func() error { _, err := s.ListProgress(ctx, "", domain.KindModuleProgress, ""); return err }(),
		"insights": func() error { _, err := s.GetInsights(ctx, ""); return err }(),
		"snapshot": s.SaveSnapshot(ctx, domain.ValueSnapshot{ID: "x"}),
		"history":  func() error { _, err := s.ListSnapshots(ctx, "", true); return err }(),
		"patch":    s.UpdateSnapshotAxes(ctx, "", "x", nil, time.Now()),
		"erase":    func() error { _, err := s.DeleteAllForOwner(ctx, ""); return err }(),
		"has":      func() error { _, err := s.HasData(ctx, ""); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, domain.ErrNotAuthenticated) {
			t.Errorf("%s: expected ErrNotAuthenticated, got %v", name, err)
		}
	}
}
