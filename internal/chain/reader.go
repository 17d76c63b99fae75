package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"rwaswap-rewards/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Sentinel errors for on-chain lookups.
var (
	ErrUnsupportedChain    = errors.New("no RPC endpoint configured for chain")
	ErrReceiptNotFound     = errors.New("no receipt found for transaction")
	ErrTransactionReverted = errors.New("transaction reverted on chain")
)

const maxRetries = 2

// Reader resolves receipts and token balances over raw EVM JSON-RPC.
// Endpoints come from the chains.yaml registry, keyed by chain id.
type Reader struct {
	endpoints  map[int64]string
	httpClient *http.Client
}

func NewReader(endpoints map[int64]string) (*Reader, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure http2 transport: %w", err)
	}

	return &Reader{
		endpoints: endpoints,
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   30 * time.Second,
		},
	}, nil
}

type rpcRequest struct {
	JsonRpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Id      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (r *Reader) call(ctx context.Context, chainId int64, method string, params []any, out any) error {
	endpoint, ok := r.endpoints[chainId]
	if !ok {
		return fmt.Errorf("%w: chain %d", ErrUnsupportedChain, chainId)
	}

	payload, err := json.Marshal(rpcRequest{JsonRpc: "2.0", Method: method, Params: params, Id: 1})
	if err != nil {
		return fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			zap.L().Info("Retrying RPC call",
				zap.String("method", method),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create rpc request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("rpc request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read rpc response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				continue
			}
			return lastErr
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return fmt.Errorf("failed to decode rpc response: %w", err)
		}
		if rpcResp.Error != nil {
			return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
		}
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode rpc result: %w", err)
		}
		return nil
	}
	return lastErr
}

type receiptResult struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

type blockResult struct {
	Timestamp string `json:"timestamp"`
}

// GetReceipt looks up the receipt for a transaction hash. Returns
// ErrReceiptNotFound when the chain has none, ErrTransactionReverted when
// the receipt shows failure.
func (r *Reader) GetReceipt(ctx context.Context, chainId int64, txHash string) (*models.Receipt, error) {
	var receipt *receiptResult
	if err := r.call(ctx, chainId, "eth_getTransactionReceipt", []any{txHash}, &receipt); err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrReceiptNotFound, txHash, chainId)
	}

	blockNumber, err := hexToInt64(receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid block number %q: %w", receipt.BlockNumber, err)
	}

	var block blockResult
	if err := r.call(ctx, chainId, "eth_getBlockByNumber", []any{receipt.BlockNumber, false}, &block); err != nil {
		return nil, err
	}
	blockTs, err := hexToInt64(block.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid block timestamp %q: %w", block.Timestamp, err)
	}

	result := &models.Receipt{
		TxHash:      strings.ToLower(txHash),
		Status:      receipt.Status == "0x1",
		BlockNumber: blockNumber,
		BlockTime:   time.Unix(blockTs, 0).UTC(),
	}
	if !result.Status {
		return result, fmt.Errorf("%w: %s on chain %d", ErrTransactionReverted, txHash, chainId)
	}
	return result, nil
}

// GetTokenBalance reads an ERC-20 balance via eth_call balanceOf. Returns
// the raw integer balance in token base units.
func (r *Reader) GetTokenBalance(ctx context.Context, chainId int64, token, address string) (*big.Int, error) {
	// balanceOf(address) selector + left-padded address argument.
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	data := "0x70a08231" + strings.Repeat("0", 64-len(addr)) + addr

	var result string
	err := r.call(ctx, chainId, "eth_call", []any{
		map[string]string{"to": token, "data": data}, "latest",
	}, &result)
	if err != nil {
		return nil, err
	}

	balance, ok := new(big.Int).SetString(strings.TrimPrefix(result, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid balance result %q", result)
	}
	return balance, nil
}

func hexToInt64(s string) (int64, error) {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return 0, fmt.Errorf("not a hex quantity")
	}
	return v.Int64(), nil
}
