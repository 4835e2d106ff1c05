package stage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStageExists      = errors.New("stage already exists")
	ErrStageNotFound    = errors.New("stage not found")
	ErrInvalidCap       = errors.New("invalid stage cap")
	ErrInvalidMaxSupply = errors.New("invalid max supply")
)

// Redis key templates
const (
	stageKeyFmt   = "mint:stage:%s" // %s = stage name
	stageIndexKey = "mint:stages"
	maxSupplyKey  = "mint:config:max_supply"
)

func stageKey(name string) string {
	return fmt.Sprintf(stageKeyFmt, name)
}

// Registry owns stage records and the collection-wide max supply.
type Registry struct {
	rdb *redis.Client
}

func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

// Create registers a new stage. Fails if the name is taken.
func (r *Registry) Create(ctx context.Context, s Stage) error {
	n, err := r.rdb.Exists(ctx, stageKey(s.Name)).Result()
	if err != nil {
		return fmt.Errorf("check stage %s: %w", s.Name, err)
	}
	if n > 0 {
		return ErrStageExists
	}
	if err := r.write(ctx, s); err != nil {
		return err
	}
	return r.rdb.SAdd(ctx, stageIndexKey, s.Name).Err()
}

// Get returns the stage record for name.
func (r *Registry) Get(ctx context.Context, name string) (*Stage, error) {
	vals, err := r.rdb.HGetAll(ctx, stageKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("get stage %s: %w", name, err)
	}
	if len(vals) == 0 {
		return nil, ErrStageNotFound
	}
	return stageFromMap(vals)
}

// List returns every registered stage.
func (r *Registry) List(ctx context.Context) ([]Stage, error) {
	names, err := r.rdb.SMembers(ctx, stageIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		s, err := r.Get(ctx, name)
		if err != nil {
			if errors.Is(err, ErrStageNotFound) {
				continue
			}
			return nil, err
		}
		stages = append(stages, *s)
	}
	return stages, nil
}

// SetWindow updates the start/end times of an existing stage.
func (r *Registry) SetWindow(ctx context.Context, name string, start, end int64) (*Stage, error) {
	s, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.StartTime = start
	s.EndTime = end
	return s, r.write(ctx, *s)
}

// SetPerAddressLimit updates the per-address mint limit of an existing stage.
func (r *Registry) SetPerAddressLimit(ctx context.Context, name string, limit uint64) (*Stage, error) {
	s, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.PerAddressLimit = limit
	return s, r.write(ctx, *s)
}

// SetCap updates the per-stage supply cap. A nonzero cap must fit under the
// collection max supply and sit above what has already been minted globally;
// cap 0 resets the stage to unlimited.
func (r *Registry) SetCap(ctx context.Context, name string, cap, mintedGlobal uint64) (*Stage, error) {
	s, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if cap != 0 {
		maxSupply, err := r.MaxSupply(ctx)
		if err != nil {
			return nil, err
		}
		if cap > maxSupply || cap <= mintedGlobal {
			return nil, ErrInvalidCap
		}
	}
	s.Cap = cap
	return s, r.write(ctx, *s)
}

// SetSignatureRequired toggles the signature requirement of an existing stage.
func (r *Registry) SetSignatureRequired(ctx context.Context, name string, required bool) (*Stage, error) {
	s, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.SignatureRequired = required
	return s, r.write(ctx, *s)
}

// MaxSupply returns the collection-wide max supply.
func (r *Registry) MaxSupply(ctx context.Context) (uint64, error) {
	v, err := r.rdb.Get(ctx, maxSupplyKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get max supply: %w", err)
	}
	return strconv.ParseUint(v, 10, 64)
}

// SetMaxSupply updates the collection-wide max supply. It can never drop
// below what has already been minted.
func (r *Registry) SetMaxSupply(ctx context.Context, newMax, mintedGlobal uint64) error {
	if newMax < mintedGlobal {
		return ErrInvalidMaxSupply
	}
	return r.rdb.Set(ctx, maxSupplyKey, newMax, 0).Err()
}

// SeedMaxSupply writes the configured max supply only if none is set yet,
// so restarts never clobber an admin override.
func (r *Registry) SeedMaxSupply(ctx context.Context, maxSupply uint64) error {
	return r.rdb.SetNX(ctx, maxSupplyKey, maxSupply, 0).Err()
}

// write stores the whole record with a single HSet so concurrent readers
// never observe a half-updated stage.
func (r *Registry) write(ctx context.Context, s Stage) error {
	sigRequired := 0
	if s.SignatureRequired {
		sigRequired = 1
	}
	return r.rdb.HSet(ctx, stageKey(s.Name),
		"name", s.Name,
		"signature_required", sigRequired,
		"per_address_limit", s.PerAddressLimit,
		"cap", s.Cap,
		"start_time", s.StartTime,
		"end_time", s.EndTime,
	).Err()
}

// stageFromMap decodes a stage hash. A field that fails to parse means the
// record is corrupt; that surfaces as an error rather than a stage with
// zeroed limits.
func stageFromMap(m map[string]string) (*Stage, error) {
	limit, err := strconv.ParseUint(m["per_address_limit"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stage %s: corrupt per_address_limit: %w", m["name"], err)
	}
	cap, err := strconv.ParseUint(m["cap"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stage %s: corrupt cap: %w", m["name"], err)
	}
	start, err := strconv.ParseInt(m["start_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stage %s: corrupt start_time: %w", m["name"], err)
	}
	end, err := strconv.ParseInt(m["end_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("stage %s: corrupt end_time: %w", m["name"], err)
	}
	return &Stage{
		Name:              m["name"],
		SignatureRequired: m["signature_required"] == "1",
		PerAddressLimit:   limit,
		Cap:               cap,
		StartTime:         start,
		EndTime:           end,
	}, nil
}
