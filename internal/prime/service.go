package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"rwaswap-rewards/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Service wraps the Coinbase Prime custody API used to settle payouts from
// the platform treasury wallets.
type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	transactionsSvc transactions.TransactionsService
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}

	return nil, fmt.Errorf("default portfolio not found")
}

// SubmitTransferParams contains parameters for submitting a payout transfer.
type SubmitTransferParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Symbol             string
	IdempotencyKey     string
}

// SubmitTransfer creates a custody withdrawal that settles a payout to the
// user's wallet. The idempotency key makes client retries safe: Prime
// deduplicates by it.
func (s *Service) SubmitTransfer(ctx context.Context, params SubmitTransferParams) (*models.Withdrawal, error) {
	zap.L().Info("Submitting payout transfer via Prime API",
		zap.String("portfolio_id", params.PortfolioId),
		zap.String("wallet_id", params.WalletId),
		zap.String("symbol", params.Symbol),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress),
		zap.String("idempotency_key", params.IdempotencyKey))

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:     params.PortfolioId,
		SourceWalletId:  params.WalletId,
		Amount:          params.Amount,
		IdempotencyKey:  params.IdempotencyKey,
		Symbol:          params.Symbol,
		DestinationType: "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: &model.BlockchainAddress{
			Address: params.DestinationAddress,
		},
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", params.WalletId),
			zap.String("amount", params.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	return &models.Withdrawal{
		ActivityId:     response.ActivityId,
		Amount:         params.Amount,
		Asset:          params.Symbol,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

// terminalFailures classifies custody transaction statuses that will never
// complete.
var terminalFailures = map[string]bool{
	"TRANSACTION_CANCELLED": true,
	"TRANSACTION_REJECTED":  true,
	"TRANSACTION_FAILED":    true,
	"TRANSACTION_EXPIRED":   true,
}

// IsTerminalFailure reports whether a custody status is a dead end.
func IsTerminalFailure(status string) bool {
	return terminalFailures[status]
}

// IsCompleted reports whether a custody status means settled on chain.
func IsCompleted(status string) bool {
	return status == "TRANSACTION_DONE"
}

// FindTransferByIdempotencyKey scans recent wallet transactions for the one
// submitted with the given idempotency key, harvesting its status and
// on-chain hash. Returns nil when no match exists yet.
func (s *Service) FindTransferByIdempotencyKey(ctx context.Context, portfolioId, walletId, idempotencyKey string) (*models.CustodyTransaction, error) {
	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		Types:       []string{"WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	for _, tx := range response.Transactions {
		if tx.IdempotencyKey != idempotencyKey {
			continue
		}
		return &models.CustodyTransaction{
			Id:             tx.Id,
			IdempotencyKey: tx.IdempotencyKey,
			Status:         tx.Status,
			TransactionId:  tx.TransactionId,
			Symbol:         tx.Symbol,
			Amount:         tx.Amount,
		}, nil
	}

	return nil, nil
}

// WaitForConfirmation polls the custody transaction list until the transfer
// reaches a terminal status or the context deadline expires. It holds no
// locks; callers must not either.
func (s *Service) WaitForConfirmation(ctx context.Context, portfolioId, walletId, idempotencyKey string, poll time.Duration) (*models.CustodyTransaction, error) {
	if poll <= 0 {
		poll = 5 * time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		tx, err := s.FindTransferByIdempotencyKey(ctx, portfolioId, walletId, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if tx != nil && (IsCompleted(tx.Status) || IsTerminalFailure(tx.Status)) {
			return tx, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirmation wait aborted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
