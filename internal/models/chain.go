package models

import "time"

// Receipt is the result of an on-chain transaction lookup.
type Receipt struct {
	TxHash      string
	Status      bool // true = success, false = reverted
	BlockNumber int64
	BlockTime   time.Time
}

// RouteLeg is one token leg extracted from the upstream quoting service's
// route description. The route payload is loosely structured and
// client-supplied, so extraction must be defensive.
type RouteLeg struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// SwapRoute is the shape the quoting service emits: the source and
// destination legs plus any aggregator-specific fields we ignore.
type SwapRoute struct {
	From RouteLeg `json:"from"`
	To   RouteLeg `json:"to"`
}

// ChainConfig is one chains.yaml entry: where to read receipts, which token
// settles payouts and which custody wallet funds them.
type ChainConfig struct {
	ChainId          int64  `yaml:"chain_id"`
	Name             string `yaml:"name"`
	RpcUrl           string `yaml:"rpc_url"`
	SettlementSymbol string `yaml:"settlement_symbol"`
	SettlementToken  string `yaml:"settlement_token"` // ERC-20 contract address
	PayoutWalletId   string `yaml:"payout_wallet_id"` // Prime custody wallet id
	TreasuryAddress  string `yaml:"treasury_address"`
}

// Portfolio represents a Coinbase Prime portfolio.
type Portfolio struct {
	Id   string
	Name string
}

// Withdrawal represents a custody withdrawal submitted for a payout.
type Withdrawal struct {
	ActivityId     string
	Amount         string
	Asset          string
	Destination    string
	IdempotencyKey string
}

// CustodyTransaction is a custody-side transaction record used to confirm
// payouts: matched by idempotency key, carrying the harvested on-chain hash.
type CustodyTransaction struct {
	Id             string
	IdempotencyKey string
	Status         string
	TransactionId  string // on-chain hash once available
	Symbol         string
	Amount         string
}
