// Package supply owns the mint accounting counters: global total, per-stage
// totals, and per-(address, stage) amounts. Counters only move inside the
// commit pipeline of a successful mint unit and never decrease.
package supply

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/ipforge/mintgate/internal/stage"
)

var (
	ErrPerAddressLimit  = errors.New("per-address mint limit exceeded")
	ErrStageCap         = errors.New("stage cap exceeded")
	ErrCollectionSupply = errors.New("collection max supply exceeded")
	ErrCounterOverflow  = errors.New("supply counter overflow")
)

// Redis key templates
const (
	globalKey    = "mint:supply:global"
	stageKeyFmt  = "mint:supply:stage:%s"   // %s = stage name
	holderKeyFmt = "mint:supply:addr:%s:%s" // %s = stage name, lowercase address
)

func stageTotalKey(name string) string {
	return fmt.Sprintf(stageKeyFmt, name)
}

func holderKey(name string, addr common.Address) string {
	return fmt.Sprintf(holderKeyFmt, name, strings.ToLower(addr.Hex()))
}

// Ledger owns the mint accounting counters.
type Ledger struct {
	rdb *redis.Client
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// GlobalTotal returns the number of tokens minted across all stages.
func (l *Ledger) GlobalTotal(ctx context.Context) (uint64, error) {
	return l.counter(ctx, globalKey)
}

// StageTotal returns the number of tokens minted in one stage.
func (l *Ledger) StageTotal(ctx context.Context, name string) (uint64, error) {
	return l.counter(ctx, stageTotalKey(name))
}

// HolderTotal returns the amount minted by addr in one stage.
func (l *Ledger) HolderTotal(ctx context.Context, name string, addr common.Address) (uint64, error) {
	return l.counter(ctx, holderKey(name, addr))
}

// ValidateAndReserve checks every supply rule for a prospective mint and,
// when all pass, queues the three counter increments on the unit's pipeline.
// Nothing lands in Redis until the caller commits the pipeline.
func (l *Ledger) ValidateAndReserve(
	ctx context.Context,
	pipe redis.Pipeliner,
	st *stage.Stage,
	recipient common.Address,
	amount uint64,
	maxSupply uint64,
) error {
	vals, err := l.rdb.MGet(ctx, holderKey(st.Name, recipient), stageTotalKey(st.Name), globalKey).Result()
	if err != nil {
		return fmt.Errorf("read supply counters: %w", err)
	}
	byAddr := parseCounter(vals[0])
	inStage := parseCounter(vals[1])
	global := parseCounter(vals[2])

	// Additions are guarded before comparison: wraparound would corrupt the
	// ledger, so overflow rejects the mint outright.
	for _, c := range []uint64{byAddr, inStage, global} {
		if c > math.MaxUint64-amount {
			return ErrCounterOverflow
		}
	}

	if byAddr+amount > st.PerAddressLimit {
		return ErrPerAddressLimit
	}
	if st.Cap > 0 && inStage+amount > st.Cap {
		return ErrStageCap
	}
	if global+amount > maxSupply {
		return ErrCollectionSupply
	}

	pipe.IncrBy(ctx, holderKey(st.Name, recipient), int64(amount))
	pipe.IncrBy(ctx, stageTotalKey(st.Name), int64(amount))
	pipe.IncrBy(ctx, globalKey, int64(amount))
	return nil
}

func (l *Ledger) counter(ctx context.Context, key string) (uint64, error) {
	v, err := l.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return strconv.ParseUint(v, 10, 64)
}

func parseCounter(v any) uint64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}
