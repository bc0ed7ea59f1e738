package main

import (
	"log"
	"os"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/database"
	"backend/internal/events"
	"backend/internal/handler"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Procure-to-Pay Invoice API
// @version         1.0
// @description     Invoice lifecycle, 2-way/3-way matching, and MSME Section 43B(h) compliance tracking.
// @host            localhost:8080
// @BasePath        /
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Annual reference rate (percent) for MSME penalty accrual
	referenceRate := service.DefaultMSMEReferenceRate
	if raw := os.Getenv("MSME_REFERENCE_RATE"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			log.Fatalf("Invalid MSME_REFERENCE_RATE %q: %v", raw, err)
		}
		referenceRate = parsed
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	poRepo := repository.NewPurchaseOrderRepository(db)
	gstRepo := repository.NewGSTRepository(db)
	eventLogRepo := repository.NewEventLogRepository(db)

	// Event bus: audit log write is synchronous, subscriber dispatch is not
	bus := events.NewBus(eventLogRepo)
	websocket.SubscribeHub(bus, wsHub)
	bus.Subscribe(events.EventInvoiceApproved, func(evt events.Event) {
		// EBS AP posting is triggered out-of-band; this subscriber only
		// records that the invoice became eligible.
		if p, ok := evt.Payload.(events.InvoiceApproved); ok {
			log.Printf("invoice %s approved for payment (net %s), eligible for EBS AP posting", p.InvoiceNumber, p.NetPayable)
		}
	})

	matchingService := service.NewMatchingService(invoiceRepo, matchRepo, poRepo, supplierRepo, txManager, bus)
	invoiceService := service.NewInvoiceService(invoiceRepo, supplierRepo, poRepo, gstRepo, matchingService, txManager, bus, referenceRate)
	msmeService := service.NewMSMEService(invoiceRepo, supplierRepo, referenceRate)
	gstService := service.NewGSTService(gstRepo)
	supplierService := service.NewSupplierService(supplierRepo)
	poService := service.NewPurchaseOrderService(poRepo)
	eventService := service.NewEventService(eventLogRepo)

	// Initialize Handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, msmeService)
	matchingHandler := handler.NewMatchingHandler(matchingService)
	msmeHandler := handler.NewMSMEHandler(msmeService)
	gstHandler := handler.NewGSTHandler(gstService)
	supplierHandler := handler.NewSupplierHandler(supplierService)
	poHandler := handler.NewPurchaseOrderHandler(poService)
	eventHandler := handler.NewEventHandler(eventService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	// Register API Routes
	invoiceHandler.RegisterRoutes(router.Group(""))
	matchingHandler.RegisterRoutes(router.Group(""))
	msmeHandler.RegisterRoutes(router.Group(""))
	gstHandler.RegisterRoutes(router.Group(""))
	supplierHandler.RegisterRoutes(router.Group(""))
	poHandler.RegisterRoutes(router.Group(""))
	eventHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
