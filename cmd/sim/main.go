package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calderahq/tradewind-backend/internal/archive"
	"github.com/calderahq/tradewind-backend/internal/events"
	"github.com/calderahq/tradewind-backend/internal/ledger"
	"github.com/calderahq/tradewind-backend/internal/market"
	"github.com/calderahq/tradewind-backend/internal/stream"
	"github.com/calderahq/tradewind-backend/pkg/config"
	"github.com/calderahq/tradewind-backend/pkg/db"
	"github.com/calderahq/tradewind-backend/pkg/logger"
	"github.com/calderahq/tradewind-backend/pkg/metrics"
	"github.com/calderahq/tradewind-backend/pkg/migrate"
)

// sim boots the full engine with whatever sinks are configured and walks a
// complete trade: mint, list, order, complete, withdraw fees. It doubles as a
// smoke test for the deployment wiring (db, redis, config) without needing a
// transport in front of the engine.
func main() {
	logg := logger.New(logger.Options{ServiceName: "sim"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sim",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env})

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)
	bus := events.NewBus(logg)

	if cfg.DB.Enabled() {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				logg.Error(ctx, "error closing database", err)
			}
		}()

		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			logg.Error(ctx, "failed to run dev migrations", err)
			os.Exit(1)
		}

		recorder, err := archive.NewRecorder(archive.NewRepository(dbClient.DB()), logg)
		if err != nil {
			logg.Error(ctx, "failed to create archive recorder", err)
			os.Exit(1)
		}
		bus.Subscribe(recorder)
	}

	if cfg.Redis.Enabled() {
		redisClient, err := stream.NewClient(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()

		publisher, err := stream.NewPublisher(redisClient, cfg.Stream, cfg.Engine.AssetDecimals, logg)
		if err != nil {
			logg.Error(ctx, "failed to create stream publisher", err)
			os.Exit(1)
		}
		bus.Subscribe(publisher)
	}

	owner := ledger.Address(cfg.Engine.Owner)
	ldg, err := ledger.New(ledger.Config{
		Owner:     owner,
		MaxSupply: cfg.Engine.MaxSupply,
	}, bus, logg, engineMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create ledger", err)
		os.Exit(1)
	}

	mkt, err := market.New(market.Config{
		Owner:         owner,
		EscrowAccount: ledger.Address(cfg.Engine.EscrowAccount),
		FeeBps:        cfg.Engine.FeeBps,
	}, ldg, bus, logg, engineMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create marketplace", err)
		os.Exit(1)
	}

	if err := runScenario(ctx, logg, ldg, mkt, owner); err != nil {
		logg.Error(ctx, "scenario failed", err)
		os.Exit(1)
	}
}

// runScenario walks one full trade between two accounts and settles the
// platform fee to the owner.
func runScenario(ctx context.Context, logg *logger.Logger, ldg *ledger.Ledger, mkt *market.Market, owner ledger.Address) error {
	const (
		seller = ledger.Address("sim.seller")
		buyer  = ledger.Address("sim.buyer")

		buyerFunds   = uint64(1_000)
		listingPrice = uint64(100)
	)

	if err := ldg.Mint(ctx, owner, buyer, buyerFunds); err != nil {
		return err
	}

	listingID, err := mkt.CreateListing(ctx, seller, listingPrice, `{"sku":"sim-item"}`)
	if err != nil {
		return err
	}
	ctx = logg.WithListingID(ctx, listingID)

	orderID, err := mkt.CreateOrder(ctx, buyer, listingID)
	if err != nil {
		return err
	}
	ctx = logg.WithOrderID(ctx, orderID)

	if err := mkt.CompleteOrder(ctx, seller, orderID); err != nil {
		return err
	}

	withdrawn, err := mkt.WithdrawFees(ctx, owner)
	if err != nil {
		return err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"total_supply":   ldg.TotalSupply(),
		"seller_balance": ldg.BalanceOf(seller),
		"buyer_balance":  ldg.BalanceOf(buyer),
		"owner_balance":  ldg.BalanceOf(owner),
		"fees_withdrawn": withdrawn,
		"escrow_held":    mkt.EscrowHeld(),
	}), "scenario complete")
	return nil
}
