package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/alex-mextner/expensesyncbot/internal/bot"
	"github.com/alex-mextner/expensesyncbot/internal/common"
	"github.com/alex-mextner/expensesyncbot/internal/confirm"
	"github.com/alex-mextner/expensesyncbot/internal/correction"
	"github.com/alex-mextner/expensesyncbot/internal/dispatch"
	"github.com/alex-mextner/expensesyncbot/internal/expense"
	"github.com/alex-mextner/expensesyncbot/internal/llm/gemini"
	"github.com/alex-mextner/expensesyncbot/internal/llm/openai"
	"github.com/alex-mextner/expensesyncbot/internal/match"
	"github.com/alex-mextner/expensesyncbot/internal/notify"
	"github.com/alex-mextner/expensesyncbot/internal/recognition"
	"github.com/alex-mextner/expensesyncbot/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local runs; the environment wins when both set.
	_ = godotenv.Load()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		DSN:         cfg.Database.DSN,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	jobsRepo := repository.NewJobRepository(db, logger)
	itemsRepo := repository.NewItemRepository(db, logger)
	catsRepo := repository.NewCategoryRepository(db, logger)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}
	logger.Info("telegram.connected", "username", api.Self.UserName)

	notifier := notify.NewTelegram(api)

	extractor := openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		MaxAttempts:   cfg.LLM.MaxAttempts,
		RetryBackoff:  cfg.LLM.RetryBackoff,
	}, logger)

	var vision recognition.TextRecognizer
	if cfg.Vision.APIKey != "" {
		v, err := gemini.NewVision(ctx, cfg.Vision.APIKey, cfg.Vision.Model, logger)
		if err != nil {
			logger.Error("failed to create vision client", "error", err)
			os.Exit(1)
		}
		defer v.Close()
		vision = v
	} else {
		logger.Warn("GEMINI_API_KEY not set, photo OCR fallback disabled")
	}

	browser, err := recognition.NewBrowser(cfg.Recognize.FetchTimeout, logger)
	if err != nil {
		logger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	matcher := match.NewHeuristic()
	qr := recognition.NewQR(cfg.Recognize.RemoteQREndpoint, logger)
	recognizer := recognition.NewRecognizer(qr, browser, vision, extractor,
		catsRepo, matcher, cfg.Telegram.DisplayLanguage, logger)

	committer := expense.NewLogCommitter(logger)
	corrector := correction.NewEngine(extractor, catsRepo, logger)
	flow := confirm.NewFlow(jobsRepo, itemsRepo, catsRepo, notifier, committer,
		corrector, matcher, cfg.Confirm.ItemwiseMax, logger)

	dispatcher := dispatch.New(jobsRepo, itemsRepo, recognizer, notifier, flow,
		notifier, cfg.Dispatch.Interval, logger)
	dispatcher.Start(ctx)

	router := bot.NewRouter(api, jobsRepo, flow, logger)
	logger.Info("expensebotd started")
	router.Run(ctx)

	logger.Info("expensebotd stopped")
}
