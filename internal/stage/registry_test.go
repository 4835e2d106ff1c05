package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRegistry(rdb)
}

var testStage = Stage{
	Name:              "allowlist",
	SignatureRequired: true,
	PerAddressLimit:   2,
	Cap:               100,
	StartTime:         1_000,
	EndTime:           2_000,
}

// ── Create / Get ───────────────────────────────────────────────────────────

func TestCreate_Get(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testStage); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Get(ctx, testStage.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != testStage {
		t.Errorf("got %+v want %+v", *got, testStage)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	if err := r.Create(ctx, testStage); !errors.Is(err, ErrStageExists) {
		t.Fatalf("expected ErrStageExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

// A corrupted stage hash must error out, never decode to zeroed limits.
func TestGet_CorruptRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRegistry(rdb)
	ctx := context.Background()

	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	if err := rdb.HSet(ctx, stageKey(testStage.Name), "cap", "not-a-number").Err(); err != nil {
		t.Fatal(err)
	}

	_, err := r.Get(ctx, testStage.Name)
	if err == nil {
		t.Fatal("expected error for corrupt record")
	}
	if errors.Is(err, ErrStageNotFound) {
		t.Fatalf("corruption misreported as not-found: %v", err)
	}
}

// Reading twice with no mutation in between must yield identical records.
func TestGet_Idempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	a, _ := r.Get(ctx, testStage.Name)
	b, _ := r.Get(ctx, testStage.Name)
	if *a != *b {
		t.Errorf("reads differ: %+v vs %+v", *a, *b)
	}
}

// ── Setters ────────────────────────────────────────────────────────────────

func TestSetters_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.SetWindow(ctx, "missing", 0, 1); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("SetWindow: expected ErrStageNotFound, got %v", err)
	}
	if _, err := r.SetPerAddressLimit(ctx, "missing", 5); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("SetPerAddressLimit: expected ErrStageNotFound, got %v", err)
	}
	if _, err := r.SetCap(ctx, "missing", 5, 0); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("SetCap: expected ErrStageNotFound, got %v", err)
	}
	if _, err := r.SetSignatureRequired(ctx, "missing", false); !errors.Is(err, ErrStageNotFound) {
		t.Errorf("SetSignatureRequired: expected ErrStageNotFound, got %v", err)
	}
}

func TestSetWindow(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetWindow(ctx, testStage.Name, 5_000, 6_000); err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	got, _ := r.Get(ctx, testStage.Name)
	if got.StartTime != 5_000 || got.EndTime != 6_000 {
		t.Errorf("window not updated: %+v", got)
	}
	// Other fields must be unchanged
	if got.Cap != testStage.Cap || got.PerAddressLimit != testStage.PerAddressLimit {
		t.Errorf("unrelated fields changed: %+v", got)
	}
}

func TestSetCap_Valid(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	if err := r.SetMaxSupply(ctx, 10_000, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetCap(ctx, testStage.Name, 500, 10); err != nil {
		t.Fatalf("SetCap: %v", err)
	}
	got, _ := r.Get(ctx, testStage.Name)
	if got.Cap != 500 {
		t.Errorf("cap: got %d want 500", got.Cap)
	}
}

func TestSetCap_AboveMaxSupply(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	if err := r.SetMaxSupply(ctx, 100, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetCap(ctx, testStage.Name, 101, 0); !errors.Is(err, ErrInvalidCap) {
		t.Fatalf("expected ErrInvalidCap, got %v", err)
	}
}

func TestSetCap_BelowMinted(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}
	if err := r.SetMaxSupply(ctx, 10_000, 0); err != nil {
		t.Fatal(err)
	}

	// cap equal to the global minted total is rejected too
	if _, err := r.SetCap(ctx, testStage.Name, 50, 50); !errors.Is(err, ErrInvalidCap) {
		t.Fatalf("expected ErrInvalidCap, got %v", err)
	}
}

func TestSetCap_ZeroResetsUnlimited(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if err := r.Create(ctx, testStage); err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetCap(ctx, testStage.Name, 0, 9_999); err != nil {
		t.Fatalf("SetCap(0): %v", err)
	}
	got, _ := r.Get(ctx, testStage.Name)
	if got.Cap != 0 {
		t.Errorf("cap: got %d want 0", got.Cap)
	}
}

// ── Max supply ─────────────────────────────────────────────────────────────

func TestSetMaxSupply_BelowMinted(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.SetMaxSupply(ctx, 99, 100); !errors.Is(err, ErrInvalidMaxSupply) {
		t.Fatalf("expected ErrInvalidMaxSupply, got %v", err)
	}
}

func TestSeedMaxSupply_DoesNotClobber(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.SetMaxSupply(ctx, 777, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SeedMaxSupply(ctx, 10_000); err != nil {
		t.Fatal(err)
	}
	got, err := r.MaxSupply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != 777 {
		t.Errorf("max supply: got %d want 777 (seed overwrote admin value)", got)
	}
}

// ── State derivation ───────────────────────────────────────────────────────

func TestStateAt(t *testing.T) {
	s := Stage{Name: "w", StartTime: 1_000, EndTime: 2_000}
	cases := []struct {
		now  int64
		want State
	}{
		{999, StatePending},
		{1_000, StateActive}, // start boundary is inclusive
		{1_500, StateActive},
		{2_000, StateActive}, // end boundary is inclusive
		{2_001, StateEnded},
	}
	for _, tc := range cases {
		if got := s.StateAt(tc.now); got != tc.want {
			t.Errorf("StateAt(%d): got %s want %s", tc.now, got, tc.want)
		}
		if active := s.ActiveAt(tc.now); active != (tc.want == StateActive) {
			t.Errorf("ActiveAt(%d): got %v", tc.now, active)
		}
	}
}
