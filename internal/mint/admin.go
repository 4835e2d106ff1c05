package mint

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ipforge/mintgate/internal/stage"
)

// Administrative operations. These do not take the engine lock: stage
// records are written with a single HSet, so a concurrent mint unit sees
// either the old or the new record, never a torn one.

// StageInfo is the read model served to clients.
type StageInfo struct {
	Stage       stage.Stage
	State       stage.State
	MintedTotal uint64
}

func (e *Engine) CreateStage(ctx context.Context, s stage.Stage) error {
	if err := e.stages.Create(ctx, s); err != nil {
		return err
	}
	e.emitter.StageCreated(ctx, s)
	return nil
}

func (e *Engine) SetStageWindow(ctx context.Context, name string, start, end int64) error {
	s, err := e.stages.SetWindow(ctx, name, start, end)
	if err != nil {
		return err
	}
	e.emitter.StageUpdated(ctx, *s)
	return nil
}

func (e *Engine) SetStagePerAddressLimit(ctx context.Context, name string, limit uint64) error {
	s, err := e.stages.SetPerAddressLimit(ctx, name, limit)
	if err != nil {
		return err
	}
	e.emitter.StageUpdated(ctx, *s)
	return nil
}

func (e *Engine) SetStageCap(ctx context.Context, name string, cap uint64) error {
	minted, err := e.supply.GlobalTotal(ctx)
	if err != nil {
		return err
	}
	s, err := e.stages.SetCap(ctx, name, cap, minted)
	if err != nil {
		return err
	}
	e.emitter.StageUpdated(ctx, *s)
	return nil
}

func (e *Engine) SetStageSignatureRequired(ctx context.Context, name string, required bool) error {
	s, err := e.stages.SetSignatureRequired(ctx, name, required)
	if err != nil {
		return err
	}
	e.emitter.StageUpdated(ctx, *s)
	return nil
}

func (e *Engine) SetMaxSupply(ctx context.Context, newMax uint64) error {
	minted, err := e.supply.GlobalTotal(ctx)
	if err != nil {
		return err
	}
	if err := e.stages.SetMaxSupply(ctx, newMax, minted); err != nil {
		return err
	}
	e.emitter.MaxSupplyUpdated(ctx, newMax)
	return nil
}

func (e *Engine) SetSigner(ctx context.Context, signer common.Address) error {
	if err := e.settings.SetSigner(ctx, signer); err != nil {
		return err
	}
	e.emitter.SignerUpdated(ctx, signer)
	return nil
}

func (e *Engine) SetRootIP(ctx context.Context, rootIP, licenseTemplate common.Address, licenseTermsID int64) error {
	if err := e.settings.SetRootIP(ctx, rootIP, licenseTemplate, licenseTermsID); err != nil {
		return err
	}
	e.emitter.RootIPUpdated(ctx, rootIP, licenseTemplate, licenseTermsID)
	return nil
}

func (e *Engine) Pause(ctx context.Context) error {
	if err := e.settings.SetPaused(ctx, true); err != nil {
		return err
	}
	e.emitter.Paused(ctx)
	return nil
}

func (e *Engine) Unpause(ctx context.Context) error {
	if err := e.settings.SetPaused(ctx, false); err != nil {
		return err
	}
	e.emitter.Unpaused(ctx)
	return nil
}

// Stage returns a stage record with its derived state and minted total.
func (e *Engine) Stage(ctx context.Context, name string) (*StageInfo, error) {
	s, err := e.stages.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	total, err := e.supply.StageTotal(ctx, name)
	if err != nil {
		return nil, err
	}
	return &StageInfo{Stage: *s, State: s.StateAt(e.now()), MintedTotal: total}, nil
}

// Stages returns every stage with derived state and minted totals.
func (e *Engine) Stages(ctx context.Context) ([]StageInfo, error) {
	list, err := e.stages.List(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	infos := make([]StageInfo, 0, len(list))
	for _, s := range list {
		total, err := e.supply.StageTotal(ctx, s.Name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, StageInfo{Stage: s, State: s.StateAt(now), MintedTotal: total})
	}
	return infos, nil
}
