// Package sigledger tracks consumed mint-authorization signatures.
//
// A signature is marked used only as part of the commit pipeline of a fully
// successful mint unit; a failed unit leaves the set untouched, so the same
// authorization can be retried. Once committed, the mark is permanent.
package sigledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/ipforge/mintgate/internal/authz"
)

var (
	ErrSignatureUsed    = errors.New("signature already used")
	ErrSignatureExpired = errors.New("signature expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

const usedSetKey = "mint:sig:used"

// Ledger owns the consumed-signature set.
type Ledger struct {
	rdb *redis.Client
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// fingerprint keys the set by the signature hash rather than the raw 65
// bytes, keeping members fixed-width.
func fingerprint(sig []byte) string {
	return crypto.Keccak256Hash(sig).Hex()
}

// CheckConsume validates replay and expiry, then stages the consumed mark on
// the unit's pipeline. The mark only lands in Redis when the caller commits
// the pipeline after the whole unit succeeded. Replay is reported before
// expiry: a consumed signature stays consumed no matter how stale the retry.
func (l *Ledger) CheckConsume(ctx context.Context, pipe redis.Pipeliner, sig []byte, expiry, now int64) error {
	used, err := l.rdb.SIsMember(ctx, usedSetKey, fingerprint(sig)).Result()
	if err != nil {
		return fmt.Errorf("check signature: %w", err)
	}
	if used {
		return ErrSignatureUsed
	}
	if now > expiry {
		return ErrSignatureExpired
	}
	pipe.SAdd(ctx, usedSetKey, fingerprint(sig))
	return nil
}

// IsUsed reports whether a signature has been consumed by a committed mint.
func (l *Ledger) IsUsed(ctx context.Context, sig []byte) (bool, error) {
	return l.rdb.SIsMember(ctx, usedSetKey, fingerprint(sig)).Result()
}

// VerifySigner recovers the signing address from digest and sig and checks
// it against the configured allow-list signer.
func (l *Ledger) VerifySigner(expected common.Address, digest [32]byte, sig []byte) error {
	recovered, err := authz.RecoverSigner(digest, sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if recovered != expected {
		return ErrInvalidSignature
	}
	return nil
}
