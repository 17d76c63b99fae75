package common

import (
	"fmt"
	"os"
	"path/filepath"

	"rwaswap-rewards/internal/models"

	"gopkg.in/yaml.v2"
)

type chainsFile struct {
	Chains []models.ChainConfig `yaml:"chains"`
}

// LoadChainConfig reads chains.yaml and returns the per-chain registry keyed
// by chain id. Every entry must name its chain, RPC endpoint and settlement
// token; payout_wallet_id and treasury_address may stay empty on chains that
// only verify swaps.
func LoadChainConfig(chainsPath string) (map[int64]models.ChainConfig, error) {
	if !filepath.IsAbs(chainsPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		chainsPath = filepath.Join(wd, chainsPath)
	}

	data, err := os.ReadFile(chainsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", chainsPath, err)
	}

	var config chainsFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", chainsPath, err)
	}

	registry := make(map[int64]models.ChainConfig, len(config.Chains))
	for i, c := range config.Chains {
		if c.ChainId == 0 {
			return nil, fmt.Errorf("chain at index %d missing chain_id", i)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("chain at index %d missing name", i)
		}
		if c.RpcUrl == "" {
			return nil, fmt.Errorf("chain %d missing rpc_url", c.ChainId)
		}
		if c.SettlementSymbol == "" || c.SettlementToken == "" {
			return nil, fmt.Errorf("chain %d missing settlement token config", c.ChainId)
		}
		if _, exists := registry[c.ChainId]; exists {
			return nil, fmt.Errorf("duplicate chain_id %d", c.ChainId)
		}
		registry[c.ChainId] = c
	}

	if len(registry) == 0 {
		return nil, fmt.Errorf("no chains configured in %s", chainsPath)
	}
	return registry, nil
}

// RpcEndpoints projects the registry down to what the chain reader needs.
func RpcEndpoints(chains map[int64]models.ChainConfig) map[int64]string {
	endpoints := make(map[int64]string, len(chains))
	for id, c := range chains {
		endpoints[id] = c.RpcUrl
	}
	return endpoints
}
