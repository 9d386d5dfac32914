package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/backend"
	"github.com/whatsassist/gateway/internal/config"
	"github.com/whatsassist/gateway/internal/handlers"
	"github.com/whatsassist/gateway/internal/middleware"
	"github.com/whatsassist/gateway/internal/repository"
	"github.com/whatsassist/gateway/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	otpRepo, closeStore, err := initOTPRepository(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP store")
	}
	defer closeStore()

	jwtService, err := service.NewJWTService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize JWT service")
	}

	notifier, err := initNotifier(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize notifier")
	}

	credentials := service.NewCredentialService(&cfg.Auth, logger)
	otpService := service.NewOTPService(otpRepo, &cfg.OTP, logger)

	authHandlers := handlers.NewAuthHandlers(
		credentials,
		otpService,
		jwtService,
		notifier,
		cfg.IsProduction(),
		logger,
	)
	dashboardHandlers := handlers.NewDashboardHandlers(backend.NewClient(&cfg.Backend, logger), logger)

	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)
	gatekeeper := middleware.NewGatekeeper(jwtService, logger)
	handler := setupRouter(authHandlers, dashboardHandlers, authMiddleware, gatekeeper, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":      cfg.Server.Port,
			"otp_store": cfg.OTP.Store,
			"env":       cfg.Environment,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initOTPRepository(cfg *config.Config, logger *logrus.Logger) (repository.OTPRepository, func(), error) {
	switch cfg.OTP.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		logger.Info("Redis client initialized")
		closer := func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close Redis client")
			}
		}
		return repository.NewRedisOTPRepository(client, cfg.OTP.Expiry, logger), closer, nil

	case config.StoreDynamoDB:
		client, err := initDynamoDB(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoOTPRepository(client, cfg.DynamoDB.TableName, cfg.OTP.Expiry, logger), func() {}, nil

	default:
		logger.Info("Using in-memory OTP store")
		return repository.NewMemoryOTPRepository(), func() {}, nil
	}
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func initNotifier(cfg *config.Config, logger *logrus.Logger) (service.Notifier, error) {
	if cfg.SMTP.Host == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("SMTP_HOST is required in production")
		}
		logger.Warn("SMTP_HOST not set, OTP codes will be written to the log")
		return service.NewLogNotifier(logger), nil
	}

	return service.NewSMTPNotifier(&cfg.SMTP, cfg.OTP.Expiry, logger)
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	dashboardHandlers *handlers.DashboardHandlers,
	authMiddleware *middleware.AuthMiddleware,
	gatekeeper *middleware.Gatekeeper,
	logger *logrus.Logger,
) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.Health).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.CORSMiddleware)

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", authHandlers.Login).Methods("POST", "OPTIONS")
	auth.HandleFunc("/logout", authHandlers.Logout).Methods("POST", "OPTIONS")
	auth.Handle("/session", authMiddleware.RequireAuth(http.HandlerFunc(authHandlers.Session))).Methods("GET")

	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/tasks", dashboardHandlers.ListTasks).Methods("GET")
	protected.HandleFunc("/tasks", dashboardHandlers.CreateTask).Methods("POST")
	protected.HandleFunc("/tasks/{name}", dashboardHandlers.ToggleTask).Methods("PATCH")
	protected.HandleFunc("/tasks/{name}", dashboardHandlers.DeleteTask).Methods("DELETE")
	protected.HandleFunc("/notes", dashboardHandlers.ListNotes).Methods("GET")
	protected.HandleFunc("/messages/important", dashboardHandlers.ListImportantMessages).Methods("GET")
	protected.HandleFunc("/messages/simple", dashboardHandlers.ListSimpleMessages).Methods("GET")

	pages := map[string]string{
		"/login":      "Login",
		"/verify":     "Verify",
		"/verify-otp": "Verify",
		"/dashboard":  "Dashboard",
		"/tasks":      "Tasks",
		"/notes":      "Notes",
		"/messages":   "Messages",
	}
	for path, title := range pages {
		router.HandleFunc(path, handlers.Page(path[1:], title)).Methods("GET")
	}

	// The gatekeeper wraps the whole router so it also sees paths with no route.
	var handler http.Handler = router
	handler = gatekeeper.Handler(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)
	handler = middleware.LoggingMiddleware(logger)(handler)
	return handler
}
