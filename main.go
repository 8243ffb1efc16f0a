package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/classlens/backend/analysis"
	"github.com/classlens/backend/config"
	"github.com/classlens/backend/database"
	"github.com/classlens/backend/fer"
	"github.com/classlens/backend/handlers"
	"github.com/classlens/backend/media"
	"github.com/classlens/backend/repository"
	"github.com/classlens/backend/utils"
	"github.com/classlens/backend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.OriginalsPath, cfg.AnnotatedPath, cfg.ThumbnailsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get underlying sql.DB: %v", err)
	}
	defer sqlDB.Close()

	mediaSubDirs := map[media.AssetType]string{
		media.AssetTypeOriginal:  filepath.Base(cfg.OriginalsPath),
		media.AssetTypeAnnotated: filepath.Base(cfg.AnnotatedPath),
		media.AssetTypeThumbnail: filepath.Base(cfg.ThumbnailsPath),
	}
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, mediaSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}
	mediaProcessor := media.NewProcessor(mediaStore)

	faceDetector := utils.NewDNNFaceDetector(cfg.FaceDNNNetConfigPath, cfg.FaceDNNNetModelPath, cfg.MinDetectionConfidence)
	defer faceDetector.Close()
	if !faceDetector.Enabled {
		log.Println("WARNING: face detector failed to load; uploads will fail until model files are available")
	}

	classifier := fer.NewHuggingFaceClassifier(cfg.ClassifierModelURL, cfg.ClassifierAPIToken, cfg.ClassifierTimeout, cfg.ClassifierRetries)

	log.Printf("Initializing classification worker pool (Workers: %d, Queue Size: %d)...", cfg.NumClassifyWorkers, cfg.ClassifyQueueSize)
	classifierPool := workers.NewClassifierPool(classifier, cfg.ClassifyQueueSize, cfg.NumClassifyWorkers)
	defer classifierPool.Stop()

	sessionRepo := repository.NewGormSessionRepository(gormDB)
	userRepo := repository.NewGormUserRepository(gormDB)

	analyzer := analysis.NewAnalyzer(sessionRepo, mediaStore, mediaProcessor, faceDetector, classifierPool, cfg.ThumbnailMaxSize)
	aggregator := analysis.NewAggregator(sessionRepo, sqlDB, cfg.ReportLocation, cfg.RecentSessionsLimit)

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing media in: %s", cfg.MediaStoragePath)
	log.Printf("Emotion classifier endpoint: %s", cfg.ClassifierModelURL)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(corsHandler.Handler)

	authHandler := handlers.NewAuthHandler(userRepo, cfg)
	sessionHandler := handlers.NewSessionHandler(analyzer, sessionRepo, mediaStore, cfg.MaxUploadBytes, cfg.RecentSessionsLimit)
	dashboardHandler := handlers.NewDashboardHandler(aggregator)
	imageHandler := handlers.NewImageHandler(mediaStore)
	debugHandler := handlers.NewDebugHandler(mediaStore)

	r.Get("/health", handlers.Health)
	r.Post("/auth/signup", authHandler.Signup)
	r.Post("/auth/login", authHandler.Login)

	// everything below requires a valid token
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return handlers.AuthMiddleware(userRepo, cfg.JWTSecret, next)
		})

		r.Get("/auth/me", authHandler.CurrentUser)

		r.Post("/upload", sessionHandler.Upload)
		r.Get("/session/{sessionID}", sessionHandler.GetSession)
		r.Delete("/session/{sessionID}", sessionHandler.DeleteSession)
		r.Get("/sessions/recent", sessionHandler.RecentSessions)

		r.Get("/dashboard/stats", dashboardHandler.Stats)

		r.Get("/image/{filename}", imageHandler.ServeImage)

		r.Route("/debug", func(r chi.Router) {
			// GET /debug/assets?type=original|annotated|thumbnail
			r.Get("/assets", debugHandler.ListStoredAssets)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
