package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"link-auction-claims/handlers"
	"link-auction-claims/middleware"
	"link-auction-claims/models"
	"link-auction-claims/services"
	"link-auction-claims/utils"
	"link-auction-claims/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Service-Token, X-Session-ID, X-Wallet-Address, X-Social-Username, X-Verified-User-ID, X-Host-User-ID, X-Host-Social-Username, X-Host-Wallet-Address",
		ExposeHeaders:    "Content-Length, Content-Type, X-Session-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.ClaimRecord{},
		&models.AuctionCycle{},
		&models.RedirectClick{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	payoutServiceURL := os.Getenv("PAYOUT_SERVICE_URL")
	if payoutServiceURL == "" {
		log.Fatal("PAYOUT_SERVICE_URL environment variable not set")
	}
	payoutServiceToken := os.Getenv("CLAIM_SERVICE_TOKEN")
	if payoutServiceToken == "" {
		log.Fatal("CLAIM_SERVICE_TOKEN environment variable not set")
	}

	// --- Redis is optional: without it, flow markers and the retry queue fall
	// back to in-memory (single node, markers lost on restart) ---
	var flowStore services.FlowStore
	var retryQueue services.RetryQueue
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL:", err)
		}
		rdb := redis.NewClient(opts)
		flowStore = services.NewRedisFlowStore(rdb, 24*time.Hour)
		retryQueue = services.NewRedisRetryQueue(rdb)
		log.Println("✅ Redis connected — durable flow markers and retry queue enabled")
	} else {
		log.Println("⚠️  REDIS_URL not set — using in-memory flow store and retry queue")
		flowStore = services.NewMemoryFlowStore()
		retryQueue = services.NewMemoryRetryQueue()
	}

	// Preview caching to R2 is optional too
	cachePreviews := false
	if os.Getenv("CLOUDFLARE_ACCOUNT_ID") != "" {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		cachePreviews = true
	} else {
		log.Println("⚠️  CLOUDFLARE_ACCOUNT_ID not set — winner preview images will not be re-hosted")
	}

	ledgerService := services.NewClaimLedgerService(db)
	auctionService := services.NewAuctionService(db)
	eligibilityService := services.NewEligibilityService(ledgerService, auctionService)
	payoutClient := services.NewPayoutClient(payoutServiceURL, payoutServiceToken)
	resolver := services.NewIdentityResolver(ledgerService.LinkedWallet)

	sessionManager := services.NewSessionManager(
		eligibilityService, ledgerService, payoutClient, retryQueue, flowStore,
		rewardAmountsFromEnv(), 30*time.Minute,
	)
	claimService := services.NewClaimService(sessionManager, eligibilityService, ledgerService, auctionService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auctionSyncClient := workers.NewAuctionSyncClient(auctionService, cachePreviews)
	go workers.PollAuctions(ctx, auctionSyncClient, 30*time.Second)

	retryWorker := workers.NewPayoutRetryWorker(retryQueue, payoutClient)
	retryWorker.Start(ctx)

	services.StartMaintenanceScheduler(sessionManager, auctionService)

	handlers.SetupClaimRoutes(app, claimService, resolver)
	handlers.SetupWinnerRoutes(app, auctionService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Auction settlement polling running (every 30s)")
	log.Println("✅ Payout Retry Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}

// rewardAmountsFromEnv reads per-reward payout amounts, with the defaults the
// auction frontend advertises.
func rewardAmountsFromEnv() services.RewardAmounts {
	amounts := services.RewardAmounts{
		models.RewardKindAirdrop:      500,
		models.RewardKindLikesRecasts: 1000,
		models.RewardKindLinkVisit:    420,
	}
	for kind, envVar := range map[models.RewardKind]string{
		models.RewardKindAirdrop:      "AIRDROP_REWARD_AMOUNT",
		models.RewardKindLikesRecasts: "LIKES_RECASTS_REWARD_AMOUNT",
		models.RewardKindLinkVisit:    "LINK_VISIT_REWARD_AMOUNT",
	} {
		if v := os.Getenv(envVar); v != "" {
			amount, err := strconv.ParseFloat(v, 64)
			if err != nil || amount <= 0 {
				log.Fatalf("invalid %s: %q", envVar, v)
			}
			amounts[kind] = amount
		}
	}
	return amounts
}
