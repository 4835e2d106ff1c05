// Package chain talks to the external on-chain collaborators: the token
// collection (issuance/transfer), the IP registry, and the licensing module
// (derivative linking). The gateway never interprets their internals; it
// submits transactions and reads back results.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ipforge/mintgate/internal/config"
)

const collectionABI = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}],"anonymous":false}
]`

const ipRegistryABI = `[
	{"type":"function","name":"register","stateMutability":"nonpayable","inputs":[{"name":"chainid","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"metadataURI","type":"string"},{"name":"metadataHash","type":"bytes32"},{"name":"nftMetadataHash","type":"bytes32"}],"outputs":[{"name":"ipId","type":"address"}]},
	{"type":"function","name":"ipId","stateMutability":"view","inputs":[{"name":"chainid","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

const licensingABI = `[
	{"type":"function","name":"registerDerivative","stateMutability":"nonpayable","inputs":[{"name":"childIpId","type":"address"},{"name":"parentIpIds","type":"address[]"},{"name":"licenseTermsIds","type":"uint256[]"},{"name":"licenseTemplate","type":"address"},{"name":"royaltyContext","type":"bytes"}],"outputs":[]}
]`

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Client wraps go-ethereum bindings for the three collaborator contracts.
type Client struct {
	eth            *ethclient.Client
	collection     *bind.BoundContract
	collectionAddr common.Address
	ipRegistry     *bind.BoundContract
	licensing      *bind.BoundContract
	chainID        *big.Int
	gatewayKey     *ecdsa.PrivateKey
	gatewayAddr    common.Address
}

func NewClient(cfg *config.Config) (*Client, error) {
	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.GatewayPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway private key: %w", err)
	}

	collectionParsed, err := abi.JSON(strings.NewReader(collectionABI))
	if err != nil {
		return nil, fmt.Errorf("parse collection abi: %w", err)
	}
	registryParsed, err := abi.JSON(strings.NewReader(ipRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse ip registry abi: %w", err)
	}
	licensingParsed, err := abi.JSON(strings.NewReader(licensingABI))
	if err != nil {
		return nil, fmt.Errorf("parse licensing abi: %w", err)
	}

	collectionAddr := common.HexToAddress(cfg.Chain.CollectionAddress)
	return &Client{
		eth:            eth,
		collection:     bind.NewBoundContract(collectionAddr, collectionParsed, eth, eth, eth),
		collectionAddr: collectionAddr,
		ipRegistry:     bind.NewBoundContract(common.HexToAddress(cfg.Chain.IPRegistryAddress), registryParsed, eth, eth, eth),
		licensing:      bind.NewBoundContract(common.HexToAddress(cfg.Chain.LicensingAddress), licensingParsed, eth, eth, eth),
		chainID:        big.NewInt(cfg.Chain.ChainID),
		gatewayKey:     privKey,
		gatewayAddr:    crypto.PubkeyToAddress(privKey.PublicKey),
	}, nil
}

// GatewayAddress is the self-custody point tokens pass through before the
// final transfer to the recipient.
func (c *Client) GatewayAddress() common.Address { return c.gatewayAddr }

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return c.chainID }

// CollectionAddress returns the token collection contract address.
func (c *Client) CollectionAddress() common.Address { return c.collectionAddr }

// transactOpts builds a *bind.TransactOpts signed by the gateway key.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.gatewayKey, c.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

// Issue mints one token to owner and returns its sequential token id, read
// from the Transfer event in the mined receipt.
func (c *Client) Issue(ctx context.Context, owner common.Address) (uint64, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return 0, fmt.Errorf("build tx opts: %w", err)
	}

	tx, err := c.collection.Transact(opts, "mint", owner)
	if err != nil {
		return 0, fmt.Errorf("mint tx: %w", err)
	}
	receipt, err := c.waitSuccess(ctx, tx)
	if err != nil {
		return 0, err
	}

	for _, lg := range receipt.Logs {
		if lg.Address == c.collectionAddr && len(lg.Topics) == 4 && lg.Topics[0] == transferTopic {
			return lg.Topics[3].Big().Uint64(), nil
		}
	}
	return 0, fmt.Errorf("mint tx %s: no Transfer event in receipt", tx.Hash().Hex())
}

// Transfer moves a token between owners.
func (c *Client) Transfer(ctx context.Context, from, to common.Address, tokenID uint64) error {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}
	tx, err := c.collection.Transact(opts, "transferFrom", from, to, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return fmt.Errorf("transferFrom tx: %w", err)
	}
	_, err = c.waitSuccess(ctx, tx)
	return err
}

// RegisterIP registers the token with the IP registry and returns its IP
// identity, re-read via the deterministic view after the tx confirms.
func (c *Client) RegisterIP(ctx context.Context, tokenID uint64, metadataURI string, metadataHash, nftMetadataHash [32]byte) (common.Address, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("build tx opts: %w", err)
	}
	id := new(big.Int).SetUint64(tokenID)
	tx, err := c.ipRegistry.Transact(opts, "register", c.chainID, c.collectionAddr, id, metadataURI, metadataHash, nftMetadataHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("register tx: %w", err)
	}
	if _, err := c.waitSuccess(ctx, tx); err != nil {
		return common.Address{}, err
	}

	var out []interface{}
	callOpts := &bind.CallOpts{Context: ctx}
	if err := c.ipRegistry.Call(callOpts, &out, "ipId", c.chainID, c.collectionAddr, id); err != nil {
		return common.Address{}, fmt.Errorf("ipId: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// LinkDerivative registers childIP as a derivative of the parent IPs under
// the given license template and terms.
func (c *Client) LinkDerivative(ctx context.Context, childIP common.Address, parentIPs []common.Address, licenseTemplate common.Address, licenseTermsIDs []*big.Int, royaltyContext []byte) error {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}
	tx, err := c.licensing.Transact(opts, "registerDerivative", childIP, parentIPs, licenseTermsIDs, licenseTemplate, royaltyContext)
	if err != nil {
		return fmt.Errorf("registerDerivative tx: %w", err)
	}
	_, err = c.waitSuccess(ctx, tx)
	return err
}

func (c *Client) waitSuccess(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("tx reverted: %s", tx.Hash().Hex())
	}
	return receipt, nil
}
