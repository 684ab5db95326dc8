package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/veralabs/resonance/internal/config"
	"github.com/veralabs/resonance/internal/engine"
	"github.com/veralabs/resonance/internal/rpc"
	"github.com/veralabs/resonance/pkg/ledger"
	"github.com/veralabs/resonance/pkg/store"
)

func main() {
	// 1. Load environment variables
	instanceName := os.Getenv("RESONANCE_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: RESONANCE_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}

	configPath := os.Getenv("RESONANCE_CONFIG")
	if configPath == "" {
		configPath = "resonance.yml"
	}

	// 2. Load resonance.yml configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// 3. Parse Redis URL
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	// 4. Create store client
	storeClient, err := store.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create store client: %v\n", err)
		os.Exit(1)
	}
	defer storeClient.Close()

	// 5. Verify Redis connectivity
	ctx := context.Background()
	if err := storeClient.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 6. Create the ledger transport. The signing key comes from the
	// environment only; without it the daemon runs read-only and ledger
	// writes surface as unconfigured failures.
	signingKey := os.Getenv("RESONANCE_SIGNING_KEY")
	transport, err := rpc.New(rpc.Config{
		RPCURL:             cfg.Ledger.RPCURL,
		ChainID:            cfg.Ledger.ChainID,
		PrivateKeyHex:      signingKey,
		CredentialContract: cfg.Ledger.CredentialContract,
		ScoreContract:      cfg.Ledger.ScoreContract,
		RegistryContract:   cfg.Ledger.RegistryContract,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create ledger transport: %v\n", err)
		os.Exit(1)
	}
	defer transport.Close()

	if signingKey == "" {
		fmt.Println("Warning: RESONANCE_SIGNING_KEY not set, running read-only (no ledger writes)")
	}

	ledgerClient := ledger.NewClient(transport, ledger.Config{
		SignerAddress:         transport.SignerAddress(),
		CredentialContract:    cfg.Ledger.CredentialContract,
		ScoreContract:         cfg.Ledger.ScoreContract,
		RegistryContract:      cfg.Ledger.RegistryContract,
		TokenScanWindow:       cfg.Ledger.TokenScanWindow,
		InteractionScanWindow: cfg.Ledger.InteractionScanWindow,
		CallTimeout:           cfg.CallTimeout(),
	})

	// 7. Create the reconciliation engine
	eng := engine.New(storeClient, ledgerClient, cfg, instanceName)

	fmt.Printf("Resonance engine starting for instance '%s' (report on %s)\n", instanceName, cfg.Report.Addr)

	// 8. Setup graceful shutdown
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	// 9. Start engine in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(runCtx)
	}()

	// 10. Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Engine error: %v\n", runErr)
			os.Exit(1)
		}
	}

	fmt.Println("Resonance engine stopped")
}
