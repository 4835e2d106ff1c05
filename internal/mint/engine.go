// Package mint is the decision and orchestration core: it validates a mint
// request against the active stage, the signature ledger, and the supply
// ledger, then drives issuance and IP registration, committing all ledger
// state in one atomic unit before any token leaves self-custody.
package mint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ipforge/mintgate/internal/authz"
	"github.com/ipforge/mintgate/internal/events"
	"github.com/ipforge/mintgate/internal/sigledger"
	"github.com/ipforge/mintgate/internal/stage"
	"github.com/ipforge/mintgate/internal/supply"
)

var (
	ErrStageNotActive = errors.New("stage not active")
	ErrPaused         = errors.New("minting paused")
	ErrInvalidAmount  = errors.New("invalid mint amount")
	ErrStageMismatch  = errors.New("authorization stage mismatch")
)

// TokenIssuer is the external token issuance/ownership capability.
type TokenIssuer interface {
	GatewayAddress() common.Address
	Issue(ctx context.Context, owner common.Address) (uint64, error)
	Transfer(ctx context.Context, from, to common.Address, tokenID uint64) error
}

// IPRegistrar is the external IP-registration and derivative-linking capability.
type IPRegistrar interface {
	RegisterIP(ctx context.Context, tokenID uint64, metadataURI string, metadataHash, nftMetadataHash [32]byte) (common.Address, error)
	LinkDerivative(ctx context.Context, childIP common.Address, parentIPs []common.Address, licenseTemplate common.Address, licenseTermsIDs []*big.Int, royaltyContext []byte) error
}

// Result reports one successful mint unit.
type Result struct {
	TokenIDs     []uint64
	IPIdentities []common.Address
}

// Engine composes the registries and collaborators into the executeMint flow.
type Engine struct {
	// mu serializes mint units: each unit runs to completion or fails with
	// no interleaving against the shared ledgers.
	mu sync.Mutex

	rdb       *redis.Client
	stages    *stage.Registry
	sigs      *sigledger.Ledger
	supply    *supply.Ledger
	settings  *Settings
	issuer    TokenIssuer
	registrar IPRegistrar
	emitter   *events.Emitter

	chainID        *big.Int
	collectionAddr common.Address
	metadataBase   string
	log            *zap.Logger

	now func() int64
}

func NewEngine(
	rdb *redis.Client,
	stages *stage.Registry,
	sigs *sigledger.Ledger,
	supplyLedger *supply.Ledger,
	settings *Settings,
	issuer TokenIssuer,
	registrar IPRegistrar,
	emitter *events.Emitter,
	chainID *big.Int,
	collectionAddr common.Address,
	metadataBase string,
	log *zap.Logger,
) *Engine {
	return &Engine{
		rdb:            rdb,
		stages:         stages,
		sigs:           sigs,
		supply:         supplyLedger,
		settings:       settings,
		issuer:         issuer,
		registrar:      registrar,
		emitter:        emitter,
		chainID:        chainID,
		collectionAddr: collectionAddr,
		metadataBase:   metadataBase,
		log:            log,
		now:            func() int64 { return time.Now().Unix() },
	}
}

// ExecuteMint runs one mint unit end to end. Ledger state (signature mark,
// supply counters) is staged on a pipeline and committed once issuance and
// registration have succeeded, before any token transfers out of
// self-custody. Failure before the commit leaves the ledgers exactly as
// they were; failure after it strands tokens in gateway custody with their
// capacity consumed, which fails closed.
func (e *Engine) ExecuteMint(ctx context.Context, stageName string, auth *authz.MintAuthorization) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if auth.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	// The stage name is part of the signed struct; a mismatch here would let
	// an authorization for one stage ride against another stage's rules.
	if auth.Stage != stageName {
		return nil, ErrStageMismatch
	}

	paused, err := e.settings.Paused(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrPaused
	}

	now := e.now()
	pipe := e.rdb.TxPipeline()

	st, err := e.authorize(ctx, pipe, stageName, auth, now)
	if err != nil {
		return nil, err
	}

	// From here the unit touches the chain. A caller disconnect must not be
	// able to split on-chain effects from the ledger commit, so the rest of
	// the unit runs detached from the request's cancellation.
	ctx = context.WithoutCancel(ctx)

	res, err := e.issueAndRegister(ctx, st, auth)
	if err != nil {
		return nil, err
	}

	// The ledger commits before any token leaves self-custody: by the time
	// the mint is observable to the recipient, the signature is consumed and
	// the counters reflect it.
	if _, err := pipe.Exec(ctx); err != nil {
		e.log.Error("mint ledger commit failed, issued tokens remain in gateway custody",
			zap.String("stage", stageName),
			zap.Uint64s("token_ids", res.TokenIDs),
			zap.Error(err),
		)
		return nil, fmt.Errorf("commit mint unit: %w", err)
	}

	// Transfers happen only once the full amount has been issued,
	// registered, and accounted for, so the recipient never observes a
	// partial mint. A failure here strands tokens in custody with their
	// capacity already consumed; that needs operator attention, never an
	// accounting rollback.
	gateway := e.issuer.GatewayAddress()
	for _, tokenID := range res.TokenIDs {
		if err := e.issuer.Transfer(ctx, gateway, auth.Recipient, tokenID); err != nil {
			e.log.Error("transfer failed after commit, tokens remain in gateway custody",
				zap.String("stage", stageName),
				zap.Uint64s("token_ids", res.TokenIDs),
				zap.Error(err),
			)
			return nil, fmt.Errorf("transfer token %d: %w", tokenID, err)
		}
	}

	for i, tokenID := range res.TokenIDs {
		e.emitter.Minted(ctx, events.MintedPayload{
			Stage:      stageName,
			Recipient:  auth.Recipient.Hex(),
			TokenID:    tokenID,
			IPIdentity: res.IPIdentities[i].Hex(),
		})
	}
	e.log.Info("mint executed",
		zap.String("stage", stageName),
		zap.String("recipient", auth.Recipient.Hex()),
		zap.Uint64s("token_ids", res.TokenIDs),
	)
	return res, nil
}

// authorize is the decision engine: stage lookup, signature consumption and
// verification, stage-activity check, supply validation. It stages all
// ledger writes on pipe and commits nothing itself.
func (e *Engine) authorize(ctx context.Context, pipe redis.Pipeliner, stageName string, auth *authz.MintAuthorization, now int64) (*stage.Stage, error) {
	st, err := e.stages.Get(ctx, stageName)
	if err != nil {
		return nil, err
	}

	if st.SignatureRequired {
		// Replay check comes first: a consumed signature must fail before
		// any verification work, and the consumed mark is staged so it
		// commits together with the rest of the unit.
		if err := e.sigs.CheckConsume(ctx, pipe, auth.Signature, auth.Expiry, now); err != nil {
			return nil, err
		}
		signer, err := e.settings.Signer(ctx)
		if err != nil {
			return nil, err
		}
		digest := authz.Digest(auth, e.chainID, e.collectionAddr)
		if err := e.sigs.VerifySigner(signer, digest, auth.Signature); err != nil {
			return nil, err
		}
	}

	if !st.ActiveAt(now) {
		return nil, ErrStageNotActive
	}

	maxSupply, err := e.stages.MaxSupply(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.supply.ValidateAndReserve(ctx, pipe, st, auth.Recipient, uint64(auth.Amount), maxSupply); err != nil {
		return nil, err
	}
	return st, nil
}

func (e *Engine) issueAndRegister(ctx context.Context, st *stage.Stage, auth *authz.MintAuthorization) (*Result, error) {
	rootIP, err := e.settings.RootIP(ctx)
	if err != nil {
		return nil, err
	}
	licenseTemplate, err := e.settings.LicenseTemplate(ctx)
	if err != nil {
		return nil, err
	}
	licenseTermsID, err := e.settings.LicenseTermsID(ctx)
	if err != nil {
		return nil, err
	}

	gateway := e.issuer.GatewayAddress()
	res := &Result{
		TokenIDs:     make([]uint64, 0, auth.Amount),
		IPIdentities: make([]common.Address, 0, auth.Amount),
	}
	for i := uint32(0); i < auth.Amount; i++ {
		tokenID, err := e.issuer.Issue(ctx, gateway)
		if err != nil {
			e.abortIssuance(st.Name, res, err)
			return nil, fmt.Errorf("issue token: %w", err)
		}

		uri := fmt.Sprintf("%s/%d", e.metadataBase, tokenID)
		metaHash := crypto.Keccak256Hash([]byte(uri))
		ipID, err := e.registrar.RegisterIP(ctx, tokenID, uri, metaHash, metaHash)
		if err != nil {
			e.abortIssuance(st.Name, res, err)
			return nil, fmt.Errorf("register ip for token %d: %w", tokenID, err)
		}

		err = e.registrar.LinkDerivative(ctx, ipID, []common.Address{rootIP}, licenseTemplate, []*big.Int{big.NewInt(licenseTermsID)}, nil)
		if err != nil {
			e.abortIssuance(st.Name, res, err)
			return nil, fmt.Errorf("link derivative for token %d: %w", tokenID, err)
		}

		res.TokenIDs = append(res.TokenIDs, tokenID)
		res.IPIdentities = append(res.IPIdentities, ipID)
	}
	return res, nil
}

// abortIssuance records tokens stranded in gateway custody when a unit fails
// mid-issuance. They never reach the recipient and no ledger state commits.
func (e *Engine) abortIssuance(stageName string, partial *Result, cause error) {
	if len(partial.TokenIDs) == 0 {
		return
	}
	e.log.Error("mint aborted mid-issuance: tokens remain in gateway custody",
		zap.String("stage", stageName),
		zap.Uint64s("token_ids", partial.TokenIDs),
		zap.Error(cause),
	)
}
