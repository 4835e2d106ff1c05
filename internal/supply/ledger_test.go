package supply

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/ipforge/mintgate/internal/stage"
)

func newTestLedger(t *testing.T) (*Ledger, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLedger(rdb), rdb
}

var (
	testRecipient = common.HexToAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")
	publicStage   = stage.Stage{
		Name:            "public",
		PerAddressLimit: 2,
		Cap:             100,
		StartTime:       0,
		EndTime:         1_000_000,
	}
)

func reserveAndCommit(t *testing.T, l *Ledger, rdb *redis.Client, st *stage.Stage, amount, maxSupply uint64) error {
	t.Helper()
	ctx := context.Background()
	pipe := rdb.TxPipeline()
	if err := l.ValidateAndReserve(ctx, pipe, st, testRecipient, amount, maxSupply); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func assertCounters(t *testing.T, l *Ledger, name string, wantAddr, wantStage, wantGlobal uint64) {
	t.Helper()
	ctx := context.Background()
	byAddr, err := l.HolderTotal(ctx, name, testRecipient)
	if err != nil {
		t.Fatal(err)
	}
	inStage, err := l.StageTotal(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	global, err := l.GlobalTotal(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if byAddr != wantAddr || inStage != wantStage || global != wantGlobal {
		t.Errorf("counters: got (%d,%d,%d) want (%d,%d,%d)",
			byAddr, inStage, global, wantAddr, wantStage, wantGlobal)
	}
}

// ── ValidateAndReserve ─────────────────────────────────────────────────────

func TestValidateAndReserve_IncrementsAllCounters(t *testing.T) {
	l, rdb := newTestLedger(t)
	st := publicStage

	if err := reserveAndCommit(t, l, rdb, &st, 2, 10_000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	assertCounters(t, l, st.Name, 2, 2, 2)
}

func TestValidateAndReserve_UncommittedLeavesCountersUnchanged(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	st := publicStage

	pipe := rdb.TxPipeline()
	if err := l.ValidateAndReserve(ctx, pipe, &st, testRecipient, 2, 10_000); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// pipe dropped, never executed
	assertCounters(t, l, st.Name, 0, 0, 0)
}

func TestValidateAndReserve_PerAddressLimit(t *testing.T) {
	l, rdb := newTestLedger(t)
	st := publicStage

	if err := reserveAndCommit(t, l, rdb, &st, 2, 10_000); err != nil {
		t.Fatal(err)
	}
	if err := reserveAndCommit(t, l, rdb, &st, 1, 10_000); !errors.Is(err, ErrPerAddressLimit) {
		t.Fatalf("expected ErrPerAddressLimit, got %v", err)
	}
	assertCounters(t, l, st.Name, 2, 2, 2)
}

// stage.cap = 10, stageTotal = 8, amount = 3 must fail and change nothing.
func TestValidateAndReserve_StageCap(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	st := publicStage
	st.Cap = 10
	st.PerAddressLimit = 100

	rdb.Set(ctx, stageTotalKey(st.Name), 8, 0)
	rdb.Set(ctx, globalKey, 8, 0)

	if err := reserveAndCommit(t, l, rdb, &st, 3, 10_000); !errors.Is(err, ErrStageCap) {
		t.Fatalf("expected ErrStageCap, got %v", err)
	}
	assertCounters(t, l, st.Name, 0, 8, 8)
}

func TestValidateAndReserve_ZeroCapUnlimited(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	st := publicStage
	st.Cap = 0
	st.PerAddressLimit = 10_000

	rdb.Set(ctx, stageTotalKey(st.Name), 5_000, 0)

	if err := reserveAndCommit(t, l, rdb, &st, 100, 100_000); err != nil {
		t.Fatalf("cap 0 should be unlimited: %v", err)
	}
}

func TestValidateAndReserve_CollectionSupply(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	st := publicStage
	st.Cap = 0
	st.PerAddressLimit = 100

	rdb.Set(ctx, globalKey, 9_999, 0)

	if err := reserveAndCommit(t, l, rdb, &st, 2, 10_000); !errors.Is(err, ErrCollectionSupply) {
		t.Fatalf("expected ErrCollectionSupply, got %v", err)
	}
	global, _ := l.GlobalTotal(ctx)
	if global != 9_999 {
		t.Errorf("global counter changed: %d", global)
	}
}

// Overflow is a hard failure, never a wraparound.
func TestValidateAndReserve_Overflow(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	st := publicStage
	st.PerAddressLimit = math.MaxUint64
	st.Cap = 0

	rdb.Set(ctx, holderKey(st.Name, testRecipient), strconv.FormatUint(math.MaxUint64-1, 10), 0)

	if err := reserveAndCommit(t, l, rdb, &st, 2, math.MaxUint64); !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("expected ErrCounterOverflow, got %v", err)
	}
}
