package authz

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MintAuthorization is the off-chain-signed approval for a staged mint.
// Stage is part of the signed struct so an authorization for one stage
// cannot be replayed against another.
type MintAuthorization struct {
	Recipient common.Address `json:"recipient"`
	TokenID   *big.Int       `json:"token_id"` // placeholder id bound into the signature
	Amount    uint32         `json:"amount"`
	Nonce     *big.Int       `json:"nonce"`
	Expiry    int64          `json:"expiry"` // unix seconds, inclusive
	Stage     string         `json:"stage"`
	Signature []byte         `json:"signature"`
}
