package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"career-compass/internal/domain"
	"career-compass/internal/repository"
)

type fakeAnalyzer struct {
	values      domain.ValueAnalysis
	valuesErr   error
	insights    domain.InsightsAnalysis
	insightsErr error

	valueCalls    int
	insightCalls  int
	lastInsightIn string
}

func (f *fakeAnalyzer) AnalyzeValues(ctx context.Context, transcript []domain.Message) (domain.ValueAnalysis, error) {
	f.valueCalls++
	return f.values, f.valuesErr
}

func (f *fakeAnalyzer) AnalyzeInsights(ctx context.Context, text string) (domain.InsightsAnalysis, error) {
	f.insightCalls++
	f.lastInsightIn = text
	return f.insights, f.insightsErr
}

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newSnapshotTestService(a Analyzer) (*ValueSnapshotService, *repository.StorageRouter) {
	router := repository.NewStorageRouter(repository.NewMemoryStore(), repository.NewMemoryStore(), "device-1")
	svc := NewValueSnapshotService(a, router, zap.NewNop())
	clock := &stepClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = clock.now
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("snap-%02d", n)
	}
	return svc, router
}

var twoMessages = []domain.Message{
	{Role: domain.RoleAssistant, Content: "Que valoras en un trabajo?"},
	{Role: domain.RoleUser, Content: "Aprender y ayudar a otros"},
}

func TestAnalyzeRequiresTwoMessages(t *testing.T) {
	a := &fakeAnalyzer{}
	svc, _ := newSnapshotTestService(a)

	_, err := svc.Analyze(context.Background(), domain.AuthenticatedIdentity("acct-1"), "m", twoMessages[:1])
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if a.valueCalls != 0 {
		t.Fatalf("analyzer should not be called, got %d calls", a.valueCalls)
	}
}

func TestAnalyzeFailureIsNotPersisted(t *testing.T) {
	a := &fakeAnalyzer{valuesErr: errNoJSONObject}
	svc, router := newSnapshotTestService(a)
	id := domain.AuthenticatedIdentity("acct-1")

	_, err := svc.Analyze(context.Background(), id, "m", twoMessages)
	if !errors.Is(err, domain.ErrAnalysisFailed) {
		t.Fatalf("expected ErrAnalysisFailed, got %v", err)
	}
	if !errors.Is(err, errNoJSONObject) {
		t.Fatalf("cause should be kept in the chain, got %v", err)
	}

	hist, err := router.ListSnapshots(context.Background(), id, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hist.History) != 0 {
		t.Fatalf("failed analysis must not create a snapshot, got %d", len(hist.History))
	}
}

func TestAnalyzeDefaultsMissingAxesAndRoundsConfidence(t *testing.T) {
	a := &fakeAnalyzer{values: domain.ValueAnalysis{
		domain.AxisMoneyMeaning:      {Value: 72.4, Reason: "sentido", Confidence: 90},
		domain.AxisIndividualTeam:    {Value: 140, Reason: "equipo", Confidence: 91},
		domain.AxisRecognitionImpact: {Value: -3, Reason: "impacto", Confidence: 0},
	}}
	svc, _ := newSnapshotTestService(a)

	snap, err := svc.Analyze(context.Background(), domain.AuthenticatedIdentity("acct-1"), "values-deep-dive", twoMessages)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	wantAxes := map[domain.Axis]int{
		domain.AxisMoneyMeaning:       72,
		domain.AxisStabilityAdventure: 50,
		domain.AxisAutonomyStructure:  50,
		domain.AxisIndividualTeam:     100,
		domain.AxisAmbitionBalance:    50,
		domain.AxisDepthBreadth:       50,
		domain.AxisRecognitionImpact:  0,
	}
	if diff := cmp.Diff(wantAxes, snap.Axes); diff != "" {
		t.Fatalf("axes mismatch (-want +got):\n%s", diff)
	}

	missing := snap.Reasoning[domain.AxisDepthBreadth]
	if missing.Confidence != 0 || missing.Reason != domain.AxisDefaultReason {
		t.Fatalf("missing axis not defaulted: %+v", missing)
	}
	// (90 + 91 + 0 + 4*0) / 7 = 25.86
	if snap.OverallConfidence != 26 {
		t.Fatalf("expected overall confidence 26, got %d", snap.OverallConfidence)
	}
	if snap.ModuleID != "values-deep-dive" || snap.ID == "" {
		t.Fatalf("snapshot metadata missing: %+v", snap)
	}
}

func TestAnalyzeReturnsStoredOwner(t *testing.T) {
	ctx := context.Background()
	svc, router := newSnapshotTestService(&fakeAnalyzer{values: domain.ValueAnalysis{}})

	for _, tc := range []struct {
		id   domain.Identity
		want string
	}{
		{domain.Identity{}, "device-1"},
		{domain.AnonymousIdentity(" "), "device-1"},
		{domain.AuthenticatedIdentity("acct-1"), "acct-1"},
	} {
		snap, err := svc.Analyze(ctx, tc.id, "values-deep-dive", twoMessages)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		if snap.OwnerID != tc.want {
			t.Fatalf("owner %q, want %q", snap.OwnerID, tc.want)
		}
		hist, err := router.ListSnapshots(ctx, tc.id, false)
		if err != nil || hist.Current == nil {
			t.Fatalf("list: %v %v", hist, err)
		}
		if hist.Current.OwnerID != snap.OwnerID {
			t.Fatalf("stored owner %q, returned %q", hist.Current.OwnerID, snap.OwnerID)
		}
	}
}

func TestBuildSnapshotOverallConfidenceIsRoundedMean(t *testing.T) {
	cases := []struct {
		confidences []float64
		want        int
	}{
		{[]float64{100, 100, 100, 100, 100, 100, 100}, 100},
		{[]float64{50, 50, 50, 50, 50, 50, 53}, 50},
		{[]float64{50, 50, 50, 50, 50, 50, 54}, 51},
		{nil, 0},
	}
	for _, tc := range cases {
		analysis := domain.ValueAnalysis{}
		for i, c := range tc.confidences {
			analysis[domain.Axes[i]] = domain.AxisEstimate{Value: 10, Confidence: c}
		}
		if got := BuildSnapshot(analysis).OverallConfidence; got != tc.want {
			t.Errorf("confidences %v: got %d want %d", tc.confidences, got, tc.want)
		}
	}
}

func TestHistoryOrderAndPatchAxes(t *testing.T) {
	ctx := context.Background()
	a := &fakeAnalyzer{values: domain.ValueAnalysis{
		domain.AxisMoneyMeaning: {Value: 40, Reason: "r", Confidence: 70},
	}}
	svc, _ := newSnapshotTestService(a)
	id := domain.AuthenticatedIdentity("acct-1")

	for i := 0; i < 3; i++ {
		if _, err := svc.Analyze(ctx, id, "m", twoMessages); err != nil {
			t.Fatalf("analyze %d: %v", i, err)
		}
	}

	before, err := svc.History(ctx, id, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(before.History) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(before.History))
	}
	for i := 1; i < len(before.History); i++ {
		if !before.History[i-1].CreatedAt.After(before.History[i].CreatedAt) {
			t.Fatalf("history not sorted desc at %d", i)
		}
	}
	if before.Current.ID != "snap-03" || before.Previous.ID != "snap-02" {
		t.Fatalf("unexpected current/previous: %s/%s", before.Current.ID, before.Previous.ID)
	}

	patched, err := svc.PatchAxes(ctx, id, map[domain.Axis]int{domain.AxisMoneyMeaning: 95})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.ID != "snap-03" || patched.Axes[domain.AxisMoneyMeaning] != 95 {
		t.Fatalf("unexpected patched snapshot: %+v", patched)
	}

	after, err := svc.History(ctx, id, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(after.History) != 3 {
		t.Fatalf("patch must not create snapshots, got %d", len(after.History))
	}
	for i := range after.History {
		if after.History[i].ID != before.History[i].ID {
			t.Fatalf("order changed at %d: %s != %s", i, after.History[i].ID, before.History[i].ID)
		}
	}
	if after.History[0].Axes[domain.AxisMoneyMeaning] != 95 {
		t.Fatalf("current not patched")
	}
	if diff := cmp.Diff(before.History[1:], after.History[1:]); diff != "" {
		t.Fatalf("older snapshots changed (-before +after):\n%s", diff)
	}
	if after.History[0].Axes[domain.AxisDepthBreadth] != domain.AxisDefaultValue {
		t.Fatalf("untouched axes must keep their values")
	}
}

func TestPatchAxesValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newSnapshotTestService(&fakeAnalyzer{})
	id := domain.AuthenticatedIdentity("acct-1")

	if _, err := svc.PatchAxes(ctx, id, map[domain.Axis]int{domain.AxisMoneyMeaning: 10}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without snapshots, got %v", err)
	}
	if _, err := svc.PatchAxes(ctx, id, map[domain.Axis]int{"suerte": 10}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown axis, got %v", err)
	}
	if _, err := svc.PatchAxes(ctx, id, map[domain.Axis]int{domain.AxisMoneyMeaning: 101}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for out of range value, got %v", err)
	}
}
