package common

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"rwaswap-rewards/internal/api"
	"rwaswap-rewards/internal/chain"
	"rwaswap-rewards/internal/database"
	"rwaswap-rewards/internal/formance"
	"rwaswap-rewards/internal/models"
	"rwaswap-rewards/internal/prime"
	"rwaswap-rewards/internal/rewards"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

type Services struct {
	DbService        *database.Service
	PrimeService     *prime.Service
	ChainReader      *chain.Reader
	RewardsService   *rewards.Service
	Executor         *rewards.Executor
	ApiService       *api.RewardsService
	Chains           map[int64]models.ChainConfig
	DefaultPortfolio *models.Portfolio
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the full stack: store, chain reader, custody
// writer, optional audit mirror, orchestrator and executor.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	chains, err := LoadChainConfig(cfg.ChainsFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	reader, err := chain.NewReader(RpcEndpoints(chains))
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		dbService.Close()
		return nil, err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Finding default portfolio")
	defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", defaultPortfolio.Name),
		zap.String("id", defaultPortfolio.Id))

	var mirror rewards.AuditMirror
	if cfg.Formance.Enabled {
		m, err := formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		mirror = m
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rewardsService := rewards.NewService(dbService, reader, cfg.Rewards, mirror, rng)
	executor := rewards.NewExecutor(dbService, primeService, reader, chains, defaultPortfolio.Id, cfg.Payout, mirror)
	apiService := api.NewRewardsService(dbService, cfg.Rewards)

	return &Services{
		DbService:        dbService,
		PrimeService:     primeService,
		ChainReader:      reader,
		RewardsService:   rewardsService,
		Executor:         executor,
		ApiService:       apiService,
		Chains:           chains,
		DefaultPortfolio: defaultPortfolio,
	}, nil
}

// InitializeDatabaseOnly initializes just the store without the Prime API.
// Useful for read-only operations like overview and progress queries.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
