package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mohomer/layla-concierge/internal/api/router"
	appconfig "github.com/mohomer/layla-concierge/internal/config"
	"github.com/mohomer/layla-concierge/internal/conversation"
	"github.com/mohomer/layla-concierge/internal/http/handlers"
	"github.com/mohomer/layla-concierge/internal/media"
	"github.com/mohomer/layla-concierge/internal/messaging"
	"github.com/mohomer/layla-concierge/internal/notify"
	"github.com/mohomer/layla-concierge/internal/observability/metrics"
	"github.com/mohomer/layla-concierge/internal/outreach"
	"github.com/mohomer/layla-concierge/internal/retrieval"
	"github.com/mohomer/layla-concierge/internal/scheduling"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

const embeddingModel = "text-embedding-3-small"

// operatorNotifier forwards operator notifications over WhatsApp.
type operatorNotifier struct {
	provider messaging.Provider
	to       string
}

func (n *operatorNotifier) Notify(ctx context.Context, text string) error {
	return n.provider.SendText(ctx, n.to, text)
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting layla-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.WasenderAPIToken == "" {
		logger.Error("WASENDER_API_TOKEN is required")
		os.Exit(1)
	}
	provider := messaging.NewWaSender(messaging.WaSenderConfig{
		APIURL:         cfg.WasenderAPIURL,
		InteractiveURL: cfg.WasenderInteractiveURL,
		Token:          cfg.WasenderAPIToken,
		Logger:         logger,
	})

	history, err := conversation.NewHistoryStore(cfg.ConversationsDir, cfg.HistoryLoadTurns, cfg.HistorySaveTurns, logger)
	if err != nil {
		logger.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}

	var pauses conversation.PauseRegistry
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pauses = conversation.NewRedisPauseRegistry(client, logger)
		logger.Info("using redis pause registry", "addr", cfg.RedisAddr)
	} else {
		pauses = conversation.NewMemoryPauseRegistry()
	}

	var aiClient *openai.Client
	if cfg.OpenAIAPIKey != "" {
		aiClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		logger.Warn("OPENAI_API_KEY not set; replies and transcription are disabled")
	}

	zones, err := scheduling.LoadZones(cfg.DisplayTimezone, cfg.StorageTimezone)
	if err != nil {
		logger.Error("failed to load timezones", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var googleOpts []option.ClientOption
	if cfg.CalendarCredentials != "" {
		googleOpts = append(googleOpts, option.WithCredentialsJSON([]byte(cfg.CalendarCredentials)))
	}

	var bookingCalendar scheduling.Calendar
	if cfg.CalendarCredentials != "" && cfg.CalendarID != "" {
		svc, err := calendar.NewService(ctx, googleOpts...)
		if err != nil {
			logger.Error("failed to initialize calendar service", "error", err)
			os.Exit(1)
		}
		bookingCalendar = scheduling.NewGoogleCalendar(svc, cfg.CalendarID, logger)
	} else {
		logger.Warn("calendar not configured; booking is disabled")
	}

	var store *retrieval.MemoryStore
	if aiClient != nil {
		store = retrieval.NewMemoryStore(aiClient, embeddingModel, logger)
	}

	var reindexer *retrieval.Reindexer
	if store != nil && cfg.CalendarCredentials != "" {
		driveSvc, err := drive.NewService(ctx, googleOpts...)
		if err != nil {
			logger.Error("failed to initialize drive service", "error", err)
			os.Exit(1)
		}
		docsSvc, err := docs.NewService(ctx, googleOpts...)
		if err != nil {
			logger.Error("failed to initialize docs service", "error", err)
			os.Exit(1)
		}
		sheetsSvc, err := sheets.NewService(ctx, googleOpts...)
		if err != nil {
			logger.Error("failed to initialize sheets service", "error", err)
			os.Exit(1)
		}
		source := retrieval.NewDriveSource(driveSvc, docsSvc, sheetsSvc, logger)
		reindexer = retrieval.NewReindexer(source, store, cfg.ReindexWorkers, logger)
		defer reindexer.Shutdown()
	}

	var notifier conversation.Notifier
	operatorJID := messaging.NormalizePhone(cfg.OperatorNumber)
	if operatorJID != "" {
		notifier = &operatorNotifier{provider: provider, to: operatorJID}
	}

	var mailer *notify.AppointmentMailer
	if sender := notify.NewSMTPSender(notify.SMTPConfig{
		Server:    cfg.AppointmentSMTPServer,
		Port:      cfg.AppointmentSMTPPort,
		Sender:    cfg.AppointmentEmailSender,
		Password:  cfg.AppointmentEmailPassword,
		Recipient: cfg.AppointmentEmailRecipient,
	}, logger); sender != nil && cfg.AppointmentEmailRecipient != "" {
		mailer = notify.NewAppointmentMailer(sender, cfg.AppointmentEmailRecipient, logger)
	}

	genCfg := conversation.GeneratorConfig{
		Notifier: notifier,
		Mailer:   mailer,
		Model:    cfg.OpenAIModel,
		Logger:   logger,
	}
	if aiClient != nil {
		genCfg.Client = aiClient
	}
	if store != nil {
		genCfg.Retriever = store
	}
	generator := conversation.NewGenerator(genCfg)

	botMetrics := metrics.NewBotMetrics(nil)

	webhookCfg := handlers.WebhookConfig{
		History:   history,
		Pauses:    pauses,
		Generator: generator,
		Provider:  provider,
		Fetcher:   media.NewFetcher(nil, logger),
		Metrics:   botMetrics,
		Logger:    logger,
	}
	if aiClient != nil {
		webhookCfg.Scheduler = scheduling.NewEngine(aiClient, bookingCalendar, zones, cfg.OpenAIModel, logger)
		webhookCfg.Transcriber = media.NewTranscriber(aiClient, logger)
	}
	webhook := handlers.NewWebhookHandler(webhookCfg)

	var syncHandler *handlers.SyncHandler
	if reindexer != nil {
		syncHandler = handlers.NewSyncHandler(handlers.SyncConfig{
			Queue:  reindexer,
			Secret: cfg.SyncSecretToken,
			Logger: logger,
		})
	}

	if cfg.OutreachSheetID != "" && cfg.OutreachCron != "" && cfg.CalendarCredentials != "" {
		sheetsSvc, err := sheets.NewService(ctx, googleOpts...)
		if err != nil {
			logger.Error("failed to initialize outreach sheets service", "error", err)
			os.Exit(1)
		}
		sheet := outreach.NewGoogleContactSheet(sheetsSvc, outreach.ExtractSheetID(cfg.OutreachSheetID),
			cfg.ContactsSheetName, cfg.MessageTemplateSheetName, logger)
		runner := outreach.NewRunner(sheet, provider, zones.Display, cfg.OutreachMessageDelay, botMetrics, logger)
		sched, err := outreach.NewScheduler(runner, cfg.OutreachCron, operatorJID, logger)
		if err != nil {
			logger.Error("failed to schedule outreach campaign", "error", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	}

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhook,
		Sync:           syncHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		// Webhook turns are processed synchronously; generation retries plus
		// chunked delivery can take a while.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
