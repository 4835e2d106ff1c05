// Package events publishes gateway state-change events onto a Redis list for
// downstream indexers, mirrored into the structured log.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ipforge/mintgate/internal/stage"
)

const queueKey = "mint:events"

// Event types
const (
	TypeStageCreated     = "stage_created"
	TypeStageUpdated     = "stage_updated"
	TypeSignerUpdated    = "signer_updated"
	TypeMaxSupplyUpdated = "max_supply_updated"
	TypeRootIPUpdated    = "root_ip_updated"
	TypeMinted           = "minted"
	TypePaused           = "paused"
	TypeUnpaused         = "unpaused"
)

// Envelope is the wire shape pushed onto the queue.
type Envelope struct {
	Type    string          `json:"type"`
	At      int64           `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

type stagePayload struct {
	Name              string `json:"name"`
	SignatureRequired bool   `json:"signature_required"`
	PerAddressLimit   uint64 `json:"per_address_limit"`
	Cap               uint64 `json:"cap"`
	StartTime         int64  `json:"start_time"`
	EndTime           int64  `json:"end_time"`
}

// MintedPayload is emitted once per issued token.
type MintedPayload struct {
	Stage      string `json:"stage"`
	Recipient  string `json:"recipient"`
	TokenID    uint64 `json:"token_id"`
	IPIdentity string `json:"ip_identity"`
}

// Emitter pushes events to Redis. Emission failures are logged, never
// propagated: by the time an event fires, the state change is committed.
type Emitter struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewEmitter(rdb *redis.Client, log *zap.Logger) *Emitter {
	return &Emitter{rdb: rdb, log: log}
}

func (e *Emitter) StageCreated(ctx context.Context, s stage.Stage) {
	e.emit(ctx, TypeStageCreated, stageToPayload(s))
}

func (e *Emitter) StageUpdated(ctx context.Context, s stage.Stage) {
	e.emit(ctx, TypeStageUpdated, stageToPayload(s))
}

func (e *Emitter) SignerUpdated(ctx context.Context, signer common.Address) {
	e.emit(ctx, TypeSignerUpdated, map[string]string{"signer": signer.Hex()})
}

func (e *Emitter) MaxSupplyUpdated(ctx context.Context, maxSupply uint64) {
	e.emit(ctx, TypeMaxSupplyUpdated, map[string]uint64{"max_supply": maxSupply})
}

func (e *Emitter) RootIPUpdated(ctx context.Context, rootIP common.Address, licenseTemplate common.Address, licenseTermsID int64) {
	e.emit(ctx, TypeRootIPUpdated, map[string]any{
		"root_ip":          rootIP.Hex(),
		"license_template": licenseTemplate.Hex(),
		"license_terms_id": licenseTermsID,
	})
}

func (e *Emitter) Minted(ctx context.Context, p MintedPayload) {
	e.emit(ctx, TypeMinted, p)
}

func (e *Emitter) Paused(ctx context.Context)   { e.emit(ctx, TypePaused, struct{}{}) }
func (e *Emitter) Unpaused(ctx context.Context) { e.emit(ctx, TypeUnpaused, struct{}{}) }

func (e *Emitter) emit(ctx context.Context, typ string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("emit: marshal payload", zap.String("type", typ), zap.Error(err))
		return
	}
	env := Envelope{Type: typ, At: time.Now().Unix(), Payload: raw}
	out, err := json.Marshal(env)
	if err != nil {
		e.log.Error("emit: marshal envelope", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := e.rdb.RPush(ctx, queueKey, string(out)).Err(); err != nil {
		e.log.Error("emit: enqueue", zap.String("type", typ), zap.Error(err))
		return
	}
	e.log.Info("event emitted", zap.String("type", typ))
}

func stageToPayload(s stage.Stage) stagePayload {
	return stagePayload{
		Name:              s.Name,
		SignatureRequired: s.SignatureRequired,
		PerAddressLimit:   s.PerAddressLimit,
		Cap:               s.Cap,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
	}
}
