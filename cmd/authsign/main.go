// cmd/authsign/main.go — signs a MintAuthorization with the allow-list
// signer key and prints the signature for distribution to a wallet.
//
// Usage:
//
//	go run ./cmd/authsign/ --key <hex-privkey> --chain-id 1514 \
//	  --collection 0x... --recipient 0x... --amount 2 --nonce 7 \
//	  --expiry 1760000000 --stage allowlist
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ipforge/mintgate/internal/authz"
)

func main() {
	keyHex := flag.String("key", "", "signer private key hex (required)")
	chainID := flag.Int64("chain-id", 0, "chain id (required)")
	collection := flag.String("collection", "", "collection contract address (required)")
	recipient := flag.String("recipient", "", "mint recipient address (required)")
	tokenID := flag.Uint64("token-id", 0, "token id placeholder")
	amount := flag.Uint("amount", 1, "amount to authorize")
	nonce := flag.Uint64("nonce", 0, "authorization nonce")
	expiry := flag.Int64("expiry", 0, "expiry unix seconds, inclusive (required)")
	stageName := flag.String("stage", "", "stage name (required)")
	flag.Parse()

	if *keyHex == "" || *chainID == 0 || *collection == "" || *recipient == "" || *expiry == 0 || *stageName == "" {
		flag.Usage()
		os.Exit(2)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse key: %v\n", err)
		os.Exit(1)
	}

	a := &authz.MintAuthorization{
		Recipient: common.HexToAddress(*recipient),
		TokenID:   new(big.Int).SetUint64(*tokenID),
		Amount:    uint32(*amount),
		Nonce:     new(big.Int).SetUint64(*nonce),
		Expiry:    *expiry,
		Stage:     *stageName,
	}
	if err := authz.Sign(a, privKey, big.NewInt(*chainID), common.HexToAddress(*collection)); err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("signer:    %s\n", crypto.PubkeyToAddress(privKey.PublicKey).Hex())
	fmt.Printf("signature: 0x%s\n", hex.EncodeToString(a.Signature))
}
