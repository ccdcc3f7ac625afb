// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"poplift/api/database"
	"poplift/api/handlers"
	"poplift/api/middleware"
	"poplift/api/store"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Initialize PostgreSQL Database (users + popup definitions) ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	// --- Initialize ClickHouse Database (analytics + campaign events) ---
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse database: %v", err)
	}
	defer chClient.Close()

	// --- Initialize Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	popupStore := store.NewPopupStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient)
	campaignStore := store.NewCampaignStore(chClient)

	// --- Initialize Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	analyticsHandlers := handlers.NewAnalyticsHandlers(analyticsStore)
	trackHandlers := handlers.NewTrackHandlers(campaignStore, popupStore)
	popupHandlers := handlers.NewPopupHandlers(popupStore)
	pixelHandler := handlers.NewPixelHandler()

	r := gin.Default()

	api := r.Group("/api")
	{
		// Public pixel endpoints: embedded on arbitrary third-party
		// origins, so CORS is wide open and auth-free.
		tracking := api.Group("/")
		tracking.Use(middleware.TrackingCORS())
		{
			tracking.GET("/pixel", pixelHandler.Serve)
			tracking.GET("/popups/:ownerId", popupHandlers.ListForPixel)
			tracking.POST("/analytics", analyticsHandlers.Ingest)
			tracking.POST("/track", trackHandlers.Track)
		}

		// Dashboard endpoints.
		dashboard := api.Group("/")
		dashboard.Use(middleware.DashboardCORS())
		{
			dashboard.POST("/signup", authHandlers.Signup)
			dashboard.POST("/login", authHandlers.Login)
			dashboard.POST("/logout", authHandlers.Logout)

			protected := dashboard.Group("/")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("/popups", popupHandlers.List)
				protected.POST("/popups", popupHandlers.Create)
				protected.PUT("/popups/:popupId", popupHandlers.Update)
				protected.DELETE("/popups/:popupId", popupHandlers.Delete)

				statsGroup := protected.Group("/stats")
				{
					statsGroup.GET("/event-counts", analyticsHandlers.GetEventCountsOverTime)
					statsGroup.GET("/unique-visitors", analyticsHandlers.GetUniqueVisitorsOverTime)
					statsGroup.GET("/top-pages", analyticsHandlers.GetTopPages)
					statsGroup.GET("/popup-funnel", trackHandlers.GetPopupFunnel)
				}
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Printf("Poplift API server starting on http://localhost:%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Poplift API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
