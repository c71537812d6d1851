package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/lalalune/babylon-sub000/internal/agent0"
	"github.com/lalalune/babylon-sub000/internal/bus"
	"github.com/lalalune/babylon-sub000/internal/chain"
	"github.com/lalalune/babylon-sub000/internal/config"
	"github.com/lalalune/babylon-sub000/internal/discovery"
	"github.com/lalalune/babylon-sub000/internal/ipfs"
	"github.com/lalalune/babylon-sub000/internal/metrics"
	"github.com/lalalune/babylon-sub000/internal/registry"
	"github.com/lalalune/babylon-sub000/internal/reputation"
	"github.com/lalalune/babylon-sub000/internal/store"
	"github.com/lalalune/babylon-sub000/pkg/utils"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	appConfig, err := config.LoadConfig(*configPath, logger)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		appConfig.Logging.Level = *logLevel
	}
	logger = utils.ConfigureLogger(appConfig.Logging)

	logger.Infof("Starting %s discovery service...", appConfig.Agent.Name)

	collector := metrics.NewCollector(logger)
	sessionBus := bus.NewSessionBus(logger)
	agentRegistry := registry.NewLocalAgentRegistry(sessionBus, logger, collector)

	agent0Client := agent0.NewClient(agent0.Config{
		Enabled:     appConfig.Agent0.Enabled,
		SubgraphURL: appConfig.Agent0.SubgraphURL,
		FeedbackURL: appConfig.Agent0.FeedbackURL,
		Timeout:     time.Duration(appConfig.Agent0.RequestTimeoutSec) * time.Second,
	}, logger)

	resolver := ipfs.NewResolver(appConfig.Agent0.IPFSGateway, logger)

	var kv store.KV
	if appConfig.Storage.PostgresURL != "" {
		pg, err := store.NewPostgres(appConfig.Storage.PostgresURL)
		if err != nil {
			logger.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("Failed to prepare storage schema: %v", err)
		}
		kv = pg
		logger.Info("Registration bookkeeping backed by Postgres")
	} else {
		kv = store.NewMemory()
		logger.Info("Registration bookkeeping held in memory")
	}

	var localSource reputation.Source
	if appConfig.Chain.ReputationRegistry != "" {
		client, err := ethclient.Dial(os.ExpandEnv(appConfig.Chain.RPC))
		if err != nil {
			logger.Fatalf("Failed to dial chain RPC: %v", err)
		}
		registryReader, err := chain.NewReputationRegistry(common.HexToAddress(appConfig.Chain.ReputationRegistry), client)
		if err != nil {
			logger.Fatalf("Failed to bind reputation registry: %v", err)
		}
		localSource = chain.NewReputationSource(registryReader)
		logger.Infof("On-chain reputation registry: %s", appConfig.Chain.ReputationRegistry)
	} else {
		logger.Warn("No reputation registry configured, local reputation source disabled")
	}

	aggregator := reputation.NewAggregator(localSource, agent0.NewReputationSource(agent0Client), logger, collector)

	unified := discovery.NewUnifiedDiscoveryService(agentRegistry, agent0Client, aggregator, logger, collector)
	games := discovery.NewGameDiscoveryService(agent0Client, resolver, kv, appConfig.Babylon.Aliases, logger, collector)

	if agent0Client.Enabled() {
		go func() {
			game, err := games.FindBabylonWithRetries(context.Background(), appConfig.Babylon.MaxRetries)
			if err != nil {
				logger.Errorf("Startup platform probe failed: %v", err)
				return
			}
			if game == nil {
				logger.Warn("Babylon platform not yet discoverable")
				return
			}
			logger.Infof("Babylon platform discoverable at token %d", game.TokenID)

			profiles := unified.DiscoverAgents(context.Background(), discovery.DiscoveryFilters{IncludeExternal: true})
			logger.Infof("%d agents visible across local registry and Agent0", len(profiles))
		}()
	}

	// Periodic housekeeping: refresh activity gauges and drop agents that
	// went silent without a disconnect event.
	housekeepingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-housekeepingDone:
				return
			case <-ticker.C:
				agentRegistry.SweepInactive(30 * time.Minute)
				stats := agentRegistry.Stats()
				logger.Debugf("Registry: %d agents, %d active", stats.TotalAgents, stats.ActiveAgents)
			}
		}
	}()

	logger.Info("Discovery service running. Press Ctrl+C to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")
	close(housekeepingDone)
	sessionBus.Stop()
	logger.Info("Discovery service stopped")
}
