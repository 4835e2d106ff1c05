package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Chain  ChainConfig
	Mint   MintConfig
	Server ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL            string `mapstructure:"rpc_url"`
	CollectionAddress string `mapstructure:"collection_address"`
	IPRegistryAddress string `mapstructure:"ip_registry_address"`
	LicensingAddress  string `mapstructure:"licensing_address"`
	GatewayPrivateKey string `mapstructure:"gateway_private_key"`
	ChainID           int64  `mapstructure:"chain_id"`
}

type MintConfig struct {
	SignerAddress   string `mapstructure:"signer_address"`
	RootIPAddress   string `mapstructure:"root_ip_address"`
	LicenseTemplate string `mapstructure:"license_template"`
	LicenseTermsID  int64  `mapstructure:"license_terms_id"`
	MaxSupply       uint64 `mapstructure:"max_supply"`
	MetadataBaseURI string `mapstructure:"metadata_base_uri"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("mint.license_terms_id", 1)
	v.SetDefault("mint.max_supply", 10000)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":                "REDIS_ADDR",
		"redis.password":            "REDIS_PASSWORD",
		"chain.rpc_url":             "RPC_URL",
		"chain.collection_address":  "COLLECTION_CONTRACT",
		"chain.ip_registry_address": "IP_REGISTRY_CONTRACT",
		"chain.licensing_address":   "LICENSING_CONTRACT",
		"chain.gateway_private_key": "GATEWAY_SIGNING_KEY",
		"chain.chain_id":            "CHAIN_ID",
		"mint.signer_address":       "MINT_SIGNER_ADDRESS",
		"mint.root_ip_address":      "ROOT_IP_ADDRESS",
		"mint.license_template":     "LICENSE_TEMPLATE",
		"mint.license_terms_id":     "LICENSE_TERMS_ID",
		"mint.max_supply":           "MAX_COLLECTION_SUPPLY",
		"mint.metadata_base_uri":    "METADATA_BASE_URI",
		"server.port":               "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.CollectionAddress, "COLLECTION_CONTRACT"},
		{c.Chain.IPRegistryAddress, "IP_REGISTRY_CONTRACT"},
		{c.Chain.LicensingAddress, "LICENSING_CONTRACT"},
		{c.Chain.GatewayPrivateKey, "GATEWAY_SIGNING_KEY"},
		{c.Mint.SignerAddress, "MINT_SIGNER_ADDRESS"},
		{c.Mint.RootIPAddress, "ROOT_IP_ADDRESS"},
		{c.Mint.LicenseTemplate, "LICENSE_TEMPLATE"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
