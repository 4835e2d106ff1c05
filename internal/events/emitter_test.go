package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ipforge/mintgate/internal/stage"
)

func newTestEmitter(t *testing.T) (*Emitter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewEmitter(rdb, zap.NewNop()), rdb
}

func popEnvelope(t *testing.T, rdb *redis.Client) Envelope {
	t.Helper()
	raw, err := rdb.LPop(context.Background(), queueKey).Result()
	if err != nil {
		t.Fatalf("pop event: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func TestStageCreated_Envelope(t *testing.T) {
	e, rdb := newTestEmitter(t)

	e.StageCreated(context.Background(), stage.Stage{
		Name:            "public",
		PerAddressLimit: 2,
		Cap:             100,
		EndTime:         1_000_000,
	})

	env := popEnvelope(t, rdb)
	if env.Type != TypeStageCreated {
		t.Errorf("type: got %s", env.Type)
	}
	if env.At == 0 {
		t.Error("timestamp not set")
	}
	var p struct {
		Name string `json:"name"`
		Cap  uint64 `json:"cap"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != "public" || p.Cap != 100 {
		t.Errorf("payload: %+v", p)
	}
}

func TestMinted_Envelope(t *testing.T) {
	e, rdb := newTestEmitter(t)

	e.Minted(context.Background(), MintedPayload{
		Stage:      "allowlist",
		Recipient:  common.HexToAddress("0x1111111111111111111111111111111111111111").Hex(),
		TokenID:    42,
		IPIdentity: common.HexToAddress("0x2222222222222222222222222222222222222222").Hex(),
	})

	env := popEnvelope(t, rdb)
	if env.Type != TypeMinted {
		t.Errorf("type: got %s", env.Type)
	}
	var p MintedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.TokenID != 42 || p.Stage != "allowlist" {
		t.Errorf("payload: %+v", p)
	}
}

func TestEvents_Ordered(t *testing.T) {
	e, rdb := newTestEmitter(t)
	ctx := context.Background()

	e.Paused(ctx)
	e.Unpaused(ctx)

	if popEnvelope(t, rdb).Type != TypePaused {
		t.Error("first event should be paused")
	}
	if popEnvelope(t, rdb).Type != TypeUnpaused {
		t.Error("second event should be unpaused")
	}
}
