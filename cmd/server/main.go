package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun/migrate"
	ddEcho "gopkg.in/DataDog/dd-trace-go.v1/contrib/labstack/echo.v4"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/micropay-ai/micropay.go/dalle"
	"github.com/micropay-ai/micropay.go/db"
	"github.com/micropay-ai/micropay.go/db/migrations"
	"github.com/micropay-ai/micropay.go/lib"
	"github.com/micropay-ai/micropay.go/lib/service"
	"github.com/micropay-ai/micropay.go/lib/transport"
	"github.com/micropay-ai/micropay.go/lnd"
	"github.com/micropay-ai/micropay.go/rabbitmq"
	"github.com/micropay-ai/micropay.go/rates"
	"github.com/micropay-ai/micropay.go/storage"
)

func main() {

	c := &service.Config{}

	// Load configruation from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configrued log file
	logger := lib.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	// Migrate the DB
	startupCtx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

	// Init new LND client
	lnCfg, err := lnd.LoadConfig()
	if err != nil {
		logger.Fatalf("Error loading LN config: %v", err)
	}
	lndClient, err := lnd.InitLNClient(lnCfg, startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing the LND connection: %v", err)
	}
	logger.Infof("Connected to LND: %s", lndClient.GetMainPubkey())

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		rabbitmqClient, err = rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithEventExchange(c.RabbitMQEventExchange),
		)
		if err != nil {
			logger.Fatal(err)
		}
		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	uploader, err := storage.NewGCSUploader(startupCtx, c.StorageBucket)
	if err != nil {
		logger.Fatalf("Error initializing the storage bucket: %v", err)
	}
	defer uploader.Close()

	svc := &service.MicropayService{
		Config:     c,
		DB:         dbConn,
		Logger:     logger,
		LndClient:  lndClient,
		Orders:     &db.OrderStore{DB: dbConn},
		Ledger:     &db.TokenLedger{DB: dbConn},
		Generator:  dalle.NewClient(c.GenerationAPIKey),
		Uploader:   uploader,
		RateSource: rates.NewCoinbaseSource(),
		Queue:      service.NewJobQueue(c.JobQueueSize),
	}
	if rabbitmqClient != nil {
		svc.Notifier = rabbitmqClient
	}

	//init echo server
	e := transport.InitEcho(c, logger)
	//if Datadog is configured, add datadog middleware
	if c.DatadogAgentUrl != "" {
		tracer.Start(tracer.WithAgentAddr(c.DatadogAgentUrl))
		defer tracer.Stop()
		e.Use(ddEcho.Middleware(ddEcho.WithServiceName("micropay.go")))
	}

	logMw := transport.CreateLoggingMiddleware(logger)
	// strict rate limit for endpoints that create invoices or spend quota
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit)

	transport.RegisterEndpoints(svc, e, transport.CreateCacheClient(), strictRateLimitMiddleware, logMw)

	var backgroundWg sync.WaitGroup
	backGroundCtx, _ := signal.NotifyContext(context.Background(), os.Interrupt)

	// Start the generation worker pool
	svc.StartWorkers(backGroundCtx)

	// Re-admit jobs that were in flight when the process last died
	backgroundWg.Add(1)
	go func() {
		err = svc.StartRecoveryRoutine(backGroundCtx)
		if err != nil {
			sentry.CaptureException(err)
			svc.Logger.Error(err)
		}
		svc.Logger.Info("Recovery routine done")
		backgroundWg.Done()
	}()

	//Start Prometheus server if necessary
	if svc.Config.EnablePrometheus {
		go transport.StartPrometheusEcho(logger, svc, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	//Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("Micropay exiting gracefully. Goodbye.")
}
