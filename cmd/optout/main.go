package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/app"
	"github.com/ternarybob/optout/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	live         = flag.Bool("live", false, "Send real unsubscribe requests (default is a dry run)")
	maxEmails    = flag.Int("max", 0, "Maximum emails to fetch (overrides config)")
	query        = flag.String("query", "", "Only consider emails whose subject contains this text")
	schedule     = flag.String("schedule", "", "Cron expression; run repeatedly instead of once")
	whitelistAdd = flag.String("whitelist-add", "", "Whitelist an email address or domain and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler(common.LogsDir())
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Println(common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("optout.toml"); err == nil {
			configFiles = append(configFiles, "optout.toml")
		} else if _, err := os.Stat("deployments/local/optout.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/optout.toml")
		}
	}

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides
	// 3. Initialize logger and print banner
	// 4. Build the app ({key} replacement happens once storage is open)
	config, err := common.LoadFromFiles(nil, configFiles...)
	if err != nil {
		arbor.NewLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, common.FlagOverrides{
		Live:      *live,
		MaxEmails: *maxEmails,
		Query:     *query,
		Schedule:  *schedule,
	})
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion(), config.Engine.DryRun)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("classifier", config.Classifier.Mode).
		Str("imap_host", config.IMAP.Host).
		Str("storage_path", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration (sanitized)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, config *common.Config, logger arbor.ILogger) error {
	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if *whitelistAdd != "" {
		added, err := application.Whitelist.Add(ctx, *whitelistAdd, "cli")
		if err != nil {
			return err
		}
		if added {
			fmt.Printf("Whitelisted %s\n", *whitelistAdd)
		} else {
			fmt.Printf("%s is already whitelisted\n", *whitelistAdd)
		}
		return nil
	}

	opts := application.RunOptions()

	if config.Runner.Schedule != "" {
		logger.Info().Str("schedule", config.Runner.Schedule).Msg("Running on schedule - Press Ctrl+C to stop")
		return application.Runner.Schedule(ctx, config.Runner.Schedule, opts)
	}

	summary, err := application.Runner.Run(ctx, opts)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}
