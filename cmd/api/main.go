package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"tradepost/internal/adapter/api"
	"tradepost/internal/adapter/api/handler"
	apimiddleware "tradepost/internal/adapter/api/middleware"
	"tradepost/internal/adapter/api/router"
	"tradepost/internal/adapter/broker"
	"tradepost/internal/adapter/ledger"
	"tradepost/internal/adapter/registry"
	"tradepost/internal/adapter/repository"
	"tradepost/internal/scheduler"
	"tradepost/internal/usecase"
	"tradepost/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account from environment (production) or file path (local
	// development); with neither, application default credentials apply.
	if credsJSON := os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"); credsJSON != "" {
		log.Printf("Using service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	} else if credsPath := os.Getenv("GOOGLE_SERVICE_ACCOUNT_PATH"); credsPath != "" {
		if _, err := os.Stat(credsPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", credsPath)
		}
		log.Printf("Using service account from file: %s", credsPath)
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirestoreProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	listingRepo := repository.NewFirestoreListingRepository(firestoreClient)
	escrowRepo := repository.NewFirestoreEscrowRepository(firestoreClient)
	settlementRepo := repository.NewFirestoreSettlementRepository(firestoreClient)

	ledgerClient := ledger.NewFirestoreLedger(firestoreClient)
	ownershipRegistry := registry.NewFirestoreRegistry(firestoreClient)

	publisher := broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	fees := usecase.NewFeeCalculator(usecase.FeeRates{
		Platform: cfg.PlatformFeeRate,
		Royalty:  cfg.RoyaltyFeeRate,
		Service:  cfg.ServiceFeeRate,
	})

	marketplace := usecase.NewMarketplace(
		listingRepo,
		escrowRepo,
		settlementRepo,
		ledgerClient,
		ownershipRegistry,
		publisher,
		fees,
	)

	sweeper := scheduler.NewScheduler(marketplace, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sweeper.Stop()

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	actorMiddleware := apimiddleware.NewActorMiddleware()

	listingHandler := handler.NewListingHandler(marketplace)
	tradingHandler := handler.NewTradingHandler(marketplace)
	rentalHandler := handler.NewRentalHandler(marketplace)
	bundleHandler := handler.NewBundleHandler(marketplace)
	healthHandler := handler.NewHealthHandler()

	router.SetupHealthRoutes(e, healthHandler)
	router.SetupListingRoutes(e, listingHandler, actorMiddleware)
	router.SetupTradingRoutes(e, tradingHandler, actorMiddleware)
	router.SetupRentalRoutes(e, rentalHandler, actorMiddleware)
	router.SetupBundleRoutes(e, bundleHandler, actorMiddleware)

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
