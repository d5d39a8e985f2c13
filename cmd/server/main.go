package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	swagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"

	"github.com/formdeck/formdeck/internal/config"
	"github.com/formdeck/formdeck/internal/database"
	"github.com/formdeck/formdeck/internal/handlers"
	"github.com/formdeck/formdeck/internal/logging"
	"github.com/formdeck/formdeck/internal/middleware"
	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/storage"
	"github.com/formdeck/formdeck/internal/types"

	_ "github.com/formdeck/formdeck/docs/api" // Swagger docs
)

// @title FormDeck API
// @version 1.0.0
// @description Form builder backend: session auth, form CRUD, response collection with file uploads, CSV export
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/formdeck/formdeck

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey SessionAuth
// @in cookie
// @name formdeck_session

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logging.Init()
	defer logging.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Upload storage
	store, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize upload storage: %v", err)
	}

	// Session store backing authentication and CSRF tokens
	sessions := session.New(session.Config{
		KeyLookup:      "cookie:" + cfg.SessionCookie,
		Expiration:     time.Duration(cfg.SessionExpiryHours) * time.Hour,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("formdeck")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := app.Group("/api")

	// Version middleware
	api.Use(middleware.VersionMiddleware())

	// Resolve the session user for every API request; CSRF applies to
	// mutating verbs only.
	api.Use(middleware.LoadUser(sessions, db))
	api.Use(middleware.RequireCSRF(sessions))

	// Create handlers
	authHandler := &handlers.AuthHandler{DB: db, Sessions: sessions}
	formsHandler := &handlers.FormsHandler{DB: db}
	responsesHandler := &handlers.ResponsesHandler{DB: db, Store: store}

	// Health probe
	api.Get("/health", func(c *fiber.Ctx) error {
		result := services.HealthCheck(cfg, db)
		status := fiber.StatusOK
		if result.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(result)
	})

	// Auth gateway
	api.Get("/auth", authHandler.GetAuth)
	api.Post("/auth", authHandler.PostAuth)

	// Form routes (all require an authenticated session)
	forms := api.Group("/forms", middleware.RequireAuth())
	forms.Get("/", formsHandler.ListForms)
	forms.Post("/", formsHandler.CreateForm)
	forms.Get("/:id", formsHandler.GetForm)
	forms.Put("/:id", formsHandler.UpdateForm)
	forms.Patch("/:id", formsHandler.UpdateForm)
	forms.Delete("/:id", formsHandler.DeleteForm)
	forms.Get("/:id/export_csv", formsHandler.ExportCSV)

	// Response routes
	forms.Get("/:formId/responses", responsesHandler.ListResponses)
	forms.Post("/:formId/responses", responsesHandler.CreateResponse)
	forms.Get("/:formId/responses/:id/download/:questionId", responsesHandler.DownloadFile)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Check if it's an application error carrying its own status and type
	if e, ok := err.(*types.CustomError); ok {
		code = e.Code
		message = e.Message
		errorType = e.Type
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    code,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}
