package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rideBoardAPI/handlers"
	"rideBoardAPI/internal/discord"
	"rideBoardAPI/internal/peloton"
	"rideBoardAPI/middleware"
	"rideBoardAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool            *pgxpool.Pool
	tokenService      *services.TokenService
	snapshotService   *services.SnapshotService
	cyclistService    *services.CyclistService
	aggregatorService *services.AggregatorService
	platformClient    *peloton.Client
	jobConfig         handlers.JobConfig
	jobSecret         string
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	jobSecret = os.Getenv("JOB_SECRET")
	if jobSecret == "" {
		log.Fatal("JOB_SECRET environment variable is not set")
	}

	clientID := os.Getenv("PELOTON_CLIENT_ID")
	if clientID == "" {
		log.Fatal("PELOTON_CLIENT_ID environment variable is not set")
	}

	referenceUserID := os.Getenv("REFERENCE_USER_ID")
	if referenceUserID == "" {
		log.Fatal("REFERENCE_USER_ID environment variable is not set")
	}

	tagName := os.Getenv("PELOTON_TAG")
	if tagName == "" {
		log.Fatal("PELOTON_TAG environment variable is not set")
	}

	tzName := envOr("REFERENCE_TZ", "America/Los_Angeles")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		log.Fatal("Invalid REFERENCE_TZ:", err)
	}

	baseURL := envOr("PELOTON_API_BASE", "https://api.onepeloton.com")
	graphqlURL := envOr("PELOTON_GRAPHQL_URL", "https://gql-graphql-gateway.prod.k8s.onepeloton.com/graphql")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	tokenService = services.NewTokenService(dbPool)
	snapshotService = services.NewSnapshotService(dbPool)
	cyclistService = services.NewCyclistService(dbPool)

	platformClient = peloton.NewClient(baseURL, graphqlURL, clientID, tokenService)
	platformClient.SetRequestObserver(middleware.CountPlatformRequest)

	var notifier services.Notifier
	if webhookURL := os.Getenv("DISCORD_WEBHOOK_URL"); webhookURL != "" {
		notifier = discord.NewWebhookClient(webhookURL)
		log.Println("Discord webhook configured")
	} else {
		log.Println("DISCORD_WEBHOOK_URL not set, posting disabled")
	}

	aggregatorService = services.NewAggregatorService(platformClient, snapshotService, cyclistService, notifier, services.AggregatorConfig{
		ReferenceUserID: referenceUserID,
		Timezone:        tz,
		LeaderboardSize: envIntOr("LEADERBOARD_SIZE", 10),
	})

	jobConfig = handlers.JobConfig{
		Timezone:        tz,
		TargetHour:      envIntOr("TARGET_HOUR", 9),
		TagName:         tagName,
		ReferenceUserID: referenceUserID,
	}

	middleware.InitPrometheus()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Ignoring non-numeric %s=%q", key, v)
	}
	return fallback
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	leaderboardHandler := handlers.NewLeaderboardHandler(snapshotService)
	cyclistHandler := handlers.NewCyclistHandler(cyclistService)
	jobHandler := handlers.NewJobHandler(aggregatorService, cyclistService, platformClient, jobConfig)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "rideBoard-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/leaderboard/latest", leaderboardHandler.GetLatest).Methods("GET")
	api.HandleFunc("/leaderboard/dates", leaderboardHandler.GetDates).Methods("GET")
	api.HandleFunc("/leaderboard/{date}", leaderboardHandler.GetByDate).Methods("GET")
	api.HandleFunc("/cyclists", cyclistHandler.List).Methods("GET")
	api.HandleFunc("/cyclists/{username}", cyclistHandler.Get).Methods("GET")

	// -------------------------------------------------------------------------
	// JOB TRIGGERS (REQUIRE SHARED SECRET)
	// -------------------------------------------------------------------------
	jobs := api.PathPrefix("/jobs").Subrouter()
	jobs.Use(middleware.JobAuthMiddleware(jobSecret))

	jobs.HandleFunc("/daily-leaderboard", jobHandler.RunDailyLeaderboard).Methods("POST")
	jobs.HandleFunc("/sync-tag", jobHandler.SyncTag).Methods("POST")
	jobs.HandleFunc("/sync-follows", jobHandler.SyncFollows).Methods("POST")

	// CORS configuration
	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length"}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Minute, // job triggers run synchronously
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
