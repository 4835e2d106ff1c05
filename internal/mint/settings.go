package mint

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/ipforge/mintgate/internal/config"
)

// Redis key templates
const (
	signerKey          = "mint:config:signer"
	rootIPKey          = "mint:config:root_ip"
	licenseTemplateKey = "mint:config:license_template"
	licenseTermsKey    = "mint:config:license_terms"
	pausedKey          = "mint:config:paused"
)

// Settings holds the admin-mutable gateway configuration in Redis so it
// survives restarts and admin updates are visible to every instance.
type Settings struct {
	rdb *redis.Client
}

func NewSettings(rdb *redis.Client) *Settings {
	return &Settings{rdb: rdb}
}

// Seed writes the configured defaults only for keys not yet set, so admin
// overrides survive restarts.
func (s *Settings) Seed(ctx context.Context, cfg *config.Config) error {
	pairs := map[string]string{
		signerKey:          common.HexToAddress(cfg.Mint.SignerAddress).Hex(),
		rootIPKey:          common.HexToAddress(cfg.Mint.RootIPAddress).Hex(),
		licenseTemplateKey: common.HexToAddress(cfg.Mint.LicenseTemplate).Hex(),
		licenseTermsKey:    strconv.FormatInt(cfg.Mint.LicenseTermsID, 10),
	}
	for key, val := range pairs {
		if err := s.rdb.SetNX(ctx, key, val, 0).Err(); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

func (s *Settings) Signer(ctx context.Context) (common.Address, error) {
	return s.address(ctx, signerKey)
}

func (s *Settings) SetSigner(ctx context.Context, addr common.Address) error {
	return s.rdb.Set(ctx, signerKey, addr.Hex(), 0).Err()
}

func (s *Settings) RootIP(ctx context.Context) (common.Address, error) {
	return s.address(ctx, rootIPKey)
}

func (s *Settings) LicenseTemplate(ctx context.Context) (common.Address, error) {
	return s.address(ctx, licenseTemplateKey)
}

func (s *Settings) LicenseTermsID(ctx context.Context) (int64, error) {
	v, err := s.rdb.Get(ctx, licenseTermsKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get license terms: %w", err)
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Settings) SetRootIP(ctx context.Context, rootIP, licenseTemplate common.Address, licenseTermsID int64) error {
	return s.rdb.MSet(ctx,
		rootIPKey, rootIP.Hex(),
		licenseTemplateKey, licenseTemplate.Hex(),
		licenseTermsKey, strconv.FormatInt(licenseTermsID, 10),
	).Err()
}

func (s *Settings) Paused(ctx context.Context) (bool, error) {
	v, err := s.rdb.Get(ctx, pausedKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get paused: %w", err)
	}
	return v == "1", nil
}

func (s *Settings) SetPaused(ctx context.Context, paused bool) error {
	v := "0"
	if paused {
		v = "1"
	}
	return s.rdb.Set(ctx, pausedKey, v, 0).Err()
}

func (s *Settings) address(ctx context.Context, key string) (common.Address, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("get %s: %w", key, err)
	}
	return common.HexToAddress(v), nil
}
