package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"go.uber.org/zap"

	"github.com/bryanwahyu/contractgate/internal/application"
	appanalyses "github.com/bryanwahyu/contractgate/internal/application/analyses"
	"github.com/bryanwahyu/contractgate/internal/config"
	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
	openaiclient "github.com/bryanwahyu/contractgate/internal/infra/ai/openai"
	"github.com/bryanwahyu/contractgate/internal/infra/ai/prompt"
	firestorep "github.com/bryanwahyu/contractgate/internal/infra/db/firestore"
	"github.com/bryanwahyu/contractgate/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/contractgate/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/contractgate/internal/infra/db/postgres"
	redisp "github.com/bryanwahyu/contractgate/internal/infra/db/redis"
	"github.com/bryanwahyu/contractgate/internal/infra/extract"
	"github.com/bryanwahyu/contractgate/internal/infra/extract/tesseract"
	"github.com/bryanwahyu/contractgate/internal/infra/httpserver"
	paypalgw "github.com/bryanwahyu/contractgate/internal/infra/payment/paypal"
	stripegw "github.com/bryanwahyu/contractgate/internal/infra/payment/stripe"
	minioStore "github.com/bryanwahyu/contractgate/internal/infra/storage"
	"github.com/bryanwahyu/contractgate/internal/logging"
	"github.com/bryanwahyu/contractgate/internal/middleware"
)

func main() {
	// .env opsional
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// record store
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		logger.Fatal("store.connect_error", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeRepo()
	logger.Info("store.connected", zap.String("driver", cfg.Store.Driver))

	// payment gateway
	gateway, err := openGateway(ctx, cfg)
	if err != nil {
		logger.Fatal("payment.init_error", zap.String("provider", cfg.Payment.Provider), zap.Error(err))
	}

	// llm
	var llm *openaiclient.Client
	if cfg.OpenAI.BaseURL != "" {
		llm = openaiclient.NewClientWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL)
	} else {
		llm = openaiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}

	// extractor
	var langs []string
	if cfg.Analysis.OCRLanguage != "" {
		langs = strings.Split(cfg.Analysis.OCRLanguage, "+")
	}
	extractor := extract.NewDispatcher(extract.NewPDFReader(), tesseract.NewEngine(langs...))

	// init service
	svc := &appanalyses.Service{
		Repo:           repo,
		Extractor:      extractor,
		Requester:      prompt.NewRequester(llm),
		Classifier:     prompt.NewClassifier(llm),
		Gateway:        gateway,
		Clock:          application.SystemClock{},
		Logger:         logger,
		Pricing:        appanalyses.DefaultPricing(),
		Timeouts:       appanalyses.DefaultTimeouts(),
		RejectDegraded: cfg.Analysis.RejectDegraded,
	}

	// init minio (optional archive)
	health := map[string]middleware.HealthChecker{}
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.Fatal("archive.init_error", zap.Error(err))
		}
		svc.Archive = store
		health["archive"] = store
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, logger, httpserver.Options{
		UploadMaxBytes:    cfg.Server.UploadMaxBytes,
		UploadDir:         cfg.Server.UploadDir,
		APIKeys:           cfg.Server.APIKeys,
		RateLimitRequests: cfg.Server.RateLimit.Requests,
		RateLimitWindow:   cfg.Server.RateLimit.Window,
		TrustProxy:        cfg.Server.TrustProxy,
		Health:            health,
	}))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// extraction + llm can take up to 90s
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server.listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server.error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("server.shutting_down")

	ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("server.shutdown_error", zap.Error(err))
	}
}

func openRepository(ctx context.Context, cfg *config.Config) (domain.Repository, func(), error) {
	switch cfg.Store.Driver {
	case "firestore":
		client, err := firestorep.Open(ctx, firestorep.Credentials{
			ProjectID: cfg.Firebase.ProjectID,
			File:      cfg.Firebase.CredentialsPath,
			JSON:      cfg.Firebase.AdminSDK,
		})
		if err != nil {
			return nil, nil, err
		}
		return firestorep.NewAnalysisRepository(client), closer(client), nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := mysqlp.NewAnalysisRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, closer(db), nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo := postgresp.NewAnalysisRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, closer(db), nil
	case "redis":
		client, err := redisp.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return redisp.NewAnalysisRepository(client), closer(client), nil
	case "memory":
		return memory.NewAnalysisRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func openGateway(ctx context.Context, cfg *config.Config) (domain.CheckoutGateway, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		return stripegw.NewGateway(cfg.Payment.StripeSecretKey, cfg.Payment.SuccessURL, cfg.Payment.CancelURL), nil
	case "paypal":
		base := paypal.APIBaseSandBox
		if cfg.Payment.PayPalLive {
			base = paypal.APIBaseLive
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		gw, err := paypalgw.New(ctx2, cfg.Payment.PayPalClientID, cfg.Payment.PayPalSecret, base,
			cfg.Payment.SuccessURL, cfg.Payment.CancelURL)
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
}

func closer(c io.Closer) func() {
	return func() { c.Close() }
}
