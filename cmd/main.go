package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"meterbill/internal/caching"
	"meterbill/internal/handlers"
	"meterbill/internal/jobs/background"
	"meterbill/internal/middleware"
	"meterbill/internal/repositories"
	"meterbill/internal/services"
	"meterbill/pkg/database"
)

const version = "1.0.0"

func main() {
	// Optional .env file for local development
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Auth configuration: HS256 shared secret or a remote JWKS endpoint.
	// Tokens gate paid quota, so refusing to start beats a generated secret.
	jwtSecret := os.Getenv("JWT_SECRET")
	jwksURL := os.Getenv("JWKS_URL")
	authMiddleware, err := middleware.NewAuthMiddleware(jwtSecret, jwksURL)
	if err != nil {
		log.Fatalf("Failed to configure auth: %v", err)
	}

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Payment gateway configuration. An empty secret key leaves payment
	// flows disabled (NotConfigured) while metering keeps working.
	paystackSecret := os.Getenv("PAYSTACK_SECRET_KEY")
	paystackBaseURL := os.Getenv("PAYSTACK_BASE_URL")
	if paystackSecret == "" {
		log.Printf("WARNING: PAYSTACK_SECRET_KEY not set; payment flows are disabled")
	}
	paystackSvc := services.NewPaystackService(paystackSecret, paystackBaseURL)

	// Optional MinIO receipt archive
	var minioSvc services.MinioService
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
		minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
		useSSL := os.Getenv("MINIO_USE_SSL") == "true"
		minioSvc, err = services.NewMinioService(minioEndpoint, minioAccessKey, minioSecretKey, useSSL)
		if err != nil {
			log.Fatalf("Failed to initialize MinIO service: %v", err)
		}
	} else {
		log.Printf("MINIO_ENDPOINT not set; invoice receipt archive disabled")
	}

	// Create repositories
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	invoiceRepo := repositories.NewInvoiceRepo(pool)

	// Create services
	quotaSvc := services.NewQuotaService(subscriptionRepo, cacheSvc, nil)
	invoiceSvc := services.NewInvoiceService(invoiceRepo, minioSvc)
	paymentSvc := services.NewPaymentService(paystackSvc, paymentRepo, quotaSvc, invoiceSvc, nil)

	// Create handlers
	paymentHandlers := handlers.NewPaymentHandlers(paymentSvc)
	webhookHandlers := handlers.NewWebhookHandlers(paymentSvc)
	usageHandlers := handlers.NewUsageHandlers(quotaSvc)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(quotaSvc, invoiceSvc)

	// Background sweeps
	scheduler := background.NewJobScheduler(quotaSvc, cacheSvc)
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Failed to stop scheduler: %v", err)
		}
	}()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", handlers.HealthCheck)
	e.GET("/health/ready", handlers.ReadinessCheck)
	e.GET("/health/detailed", func(c echo.Context) error {
		return handlers.HealthCheckDetailed(c, pool)
	})

	// API docs
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Gateway callbacks (signature-verified, no JWT)
	e.POST("/webhooks/paystack", webhookHandlers.PaystackWebhook)

	// Authenticated API
	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate())

	// Billing surface: authenticated but never metered, so an exhausted
	// free account can still upgrade and inspect its own state.
	v1.POST("/payments/initialize", paymentHandlers.InitializePayment)
	v1.GET("/payments/verify/:reference", paymentHandlers.VerifyPayment)
	v1.GET("/payments/:reference", paymentHandlers.GetPayment)
	v1.GET("/payments", paymentHandlers.GetPaymentHistory)
	v1.GET("/invoices", subscriptionHandlers.ListInvoices)
	v1.GET("/invoices/:id/receipt", subscriptionHandlers.GetInvoiceReceipt)
	v1.GET("/usage", usageHandlers.GetUsageStats)
	v1.GET("/subscription", subscriptionHandlers.GetSubscription)
	v1.GET("/plans", subscriptionHandlers.GetAvailablePlans)

	// Metered routes: every request here passes quota admission.
	metered := v1.Group("/api")
	metered.Use(middleware.QuotaAdmission(quotaSvc))
	metered.Any("/*", func(c echo.Context) error {
		// Downstream product routes mount here; admission has already run.
		return echo.NewHTTPError(404, "No such resource")
	})

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	log.Printf("meterbill v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
