package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeChainsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write chains file: %v", err)
	}
	return path
}

func TestLoadChainConfig(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chain_id: 1
    name: ethereum
    rpc_url: https://eth.example.com
    settlement_symbol: USDC
    settlement_token: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
    payout_wallet_id: wallet-1
    treasury_address: "0xtreasury"
  - chain_id: 8453
    name: base
    rpc_url: https://base.example.com
    settlement_symbol: USDC
    settlement_token: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
`)

	chains, err := LoadChainConfig(path)
	if err != nil {
		t.Fatalf("Failed to load chains: %v", err)
	}
	if len(chains) != 2 {
		t.Fatalf("Expected 2 chains, got %d", len(chains))
	}
	eth, ok := chains[1]
	if !ok {
		t.Fatal("Expected chain 1 in the registry")
	}
	if eth.Name != "ethereum" || eth.PayoutWalletId != "wallet-1" {
		t.Errorf("Unexpected chain 1 config: %+v", eth)
	}
	// payout_wallet_id is optional for verify-only chains.
	if chains[8453].PayoutWalletId != "" {
		t.Errorf("Expected empty payout wallet on base, got %s", chains[8453].PayoutWalletId)
	}
}

func TestLoadChainConfigDuplicateChainId(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chain_id: 1
    name: ethereum
    rpc_url: https://eth.example.com
    settlement_symbol: USDC
    settlement_token: "0xa0b8"
  - chain_id: 1
    name: ethereum-again
    rpc_url: https://eth2.example.com
    settlement_symbol: USDC
    settlement_token: "0xa0b8"
`)

	if _, err := LoadChainConfig(path); err == nil || !strings.Contains(err.Error(), "duplicate chain_id") {
		t.Errorf("Expected duplicate chain_id error, got %v", err)
	}
}

func TestLoadChainConfigMissingFields(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing chain_id", "chains:\n  - name: ethereum\n    rpc_url: https://x\n    settlement_symbol: USDC\n    settlement_token: \"0x1\"\n"},
		{"missing rpc_url", "chains:\n  - chain_id: 1\n    name: ethereum\n    settlement_symbol: USDC\n    settlement_token: \"0x1\"\n"},
		{"missing settlement", "chains:\n  - chain_id: 1\n    name: ethereum\n    rpc_url: https://x\n"},
		{"empty registry", "chains: []\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeChainsFile(t, tc.yaml)
			if _, err := LoadChainConfig(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadChainConfigMissingFile(t *testing.T) {
	if _, err := LoadChainConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRpcEndpoints(t *testing.T) {
	path := writeChainsFile(t, `
chains:
  - chain_id: 1
    name: ethereum
    rpc_url: https://eth.example.com
    settlement_symbol: USDC
    settlement_token: "0xa0b8"
`)
	chains, err := LoadChainConfig(path)
	if err != nil {
		t.Fatalf("Failed to load chains: %v", err)
	}

	endpoints := RpcEndpoints(chains)
	if endpoints[1] != "https://eth.example.com" {
		t.Errorf("Expected projected rpc url, got %s", endpoints[1])
	}
}
