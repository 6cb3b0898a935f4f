package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/httpclient"
	"github.com/ternarybob/optout/internal/interfaces"
	"github.com/ternarybob/optout/internal/models"
	"github.com/ternarybob/optout/internal/services/browser"
	"github.com/ternarybob/optout/internal/services/classifier"
	"github.com/ternarybob/optout/internal/services/llm"
	"github.com/ternarybob/optout/internal/services/mail"
	"github.com/ternarybob/optout/internal/services/runner"
	"github.com/ternarybob/optout/internal/services/safety"
	"github.com/ternarybob/optout/internal/services/unsubscribe"
	"github.com/ternarybob/optout/internal/services/whitelist"
	"github.com/ternarybob/optout/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// LLM service, only set in ai classifier mode
	LLMService interfaces.LLMService
	Classifier interfaces.Classifier

	Whitelist *whitelist.Registry
	Source    interfaces.EmailSource
	Engine    *unsubscribe.Engine
	Runner    *runner.Runner
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("classifier", app.Classifier.Name()).
		Bool("dry_run", cfg.Engine.DryRun).
		Bool("browser_enabled", cfg.Browser.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens storage and resolves {key} references in the config
func (a *App) initDatabase(ctx context.Context) error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager

	// Phase 2 of config loading: KV is available now
	common.ApplyKeyReplacements(ctx, a.Config, storageManager.KeyValueStorage(), a.Logger)

	a.Logger.Debug().Str("path", a.Config.Storage.Badger.Path).Msg("Storage initialized")
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config

	// 1. Whitelist (seeded once, snapshot refreshed per run)
	a.Whitelist = whitelist.NewRegistry(a.StorageManager.WhitelistStorage(), a.Logger)
	if err := a.Whitelist.Seed(ctx, cfg.Whitelist.File); err != nil {
		return fmt.Errorf("failed to seed whitelist: %w", err)
	}

	// 2. Classifier (LLM only needed in ai mode)
	if cfg.Classifier.Mode == "ai" {
		llmService, err := llm.NewLLMService(ctx, cfg, a.StorageManager.KeyValueStorage(), a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize LLM service: %w", err)
		}
		a.LLMService = llmService
	}
	c, err := classifier.New(cfg.Classifier, a.LLMService, a.Logger)
	if err != nil {
		return err
	}
	a.Classifier = c

	// 3. Unsubscribe engine
	engine, err := a.newEngine()
	if err != nil {
		return fmt.Errorf("failed to build unsubscribe engine: %w", err)
	}
	a.Engine = engine

	// 4. Mail source and runner
	a.Source = mail.NewIMAPSource(cfg.IMAP, a.Logger)
	a.Runner = runner.New(a.Source, a.Classifier, a.Engine, a.Whitelist,
		a.StorageManager.ReportStorage(), cfg.Runner, a.Logger)

	return nil
}

func (a *App) newEngine() (*unsubscribe.Engine, error) {
	cfg := a.Config

	client, err := httpclient.NewUnsubscribeClient()
	if err != nil {
		return nil, err
	}

	httpExecutor := unsubscribe.NewHTTPExecutor(a.Logger,
		unsubscribe.WithHTTPClient(client),
		unsubscribe.WithUserAgent(cfg.Engine.UserAgent),
		unsubscribe.WithRequestTimeout(cfg.Engine.RequestTimeoutDuration()),
		unsubscribe.WithHostLimiter(unsubscribe.NewHostLimiter(cfg.Engine.HostRateLimitDuration())),
	)

	// A nil driver makes every browser-link attempt fail without launching
	var driver interfaces.BrowserDriver
	if cfg.Browser.Enabled {
		driver = browser.NewChromeDriver(a.Logger)
	}
	browserExecutor := unsubscribe.NewBrowserExecutor(driver, unsubscribe.BrowserExecutorConfig{
		Launch: interfaces.LaunchOptions{
			Headless:   cfg.Browser.Headless,
			NoSandbox:  cfg.Browser.NoSandbox,
			DisableGPU: cfg.Browser.DisableGPU,
			UserAgent:  cfg.Browser.UserAgent,
		},
		NavigationTimeout: cfg.Browser.NavigationTimeoutDuration(),
		StrategyTimeout:   cfg.Browser.StrategyTimeoutDuration(),
		SettleDelay:       cfg.Browser.SettleDelayDuration(),
	}, a.Logger)

	ladder := unsubscribe.NewLadder(map[models.Method]interfaces.MechanismExecutor{
		models.MethodHTTPGet:     httpExecutor,
		models.MethodHTTPPost:    httpExecutor,
		models.MethodBrowserLink: browserExecutor,
	}, a.Logger)

	return unsubscribe.NewEngine(
		safety.NewGate(cfg.Safety),
		a.Whitelist,
		unsubscribe.NewLinkExtractor(a.Logger),
		unsubscribe.NewLinkValidator(cfg.Validator.ShortenerDomains, a.Logger),
		ladder,
		a.Logger,
	), nil
}

// RunOptions builds runner options from the resolved config
func (a *App) RunOptions() runner.Options {
	return runner.Options{
		Query:     a.Config.Runner.Query,
		MaxEmails: a.Config.Runner.MaxEmails,
		Simulate:  a.Config.Engine.DryRun,
	}
}

// Close releases the LLM client and storage
func (a *App) Close() error {
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}
