package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/moverwatch/internal/app"
	"github.com/ternarybob/moverwatch/internal/common"
	"github.com/ternarybob/moverwatch/internal/models"
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
	// Command-line flags
	configFiles configPaths // Multiple -config flags supported
	period      = flag.String("period", "", "History period: "+strings.Join(models.PeriodNames(), ", ")+" (default 5d)")
	email       = flag.String("email", "", "Comma-separated report recipients (overrides config)")
	schedule    = flag.Bool("schedule", false, "Run on the configured cron schedule instead of once")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()
	common.LoadVersionFromFile()

	if *showVersion {
		fmt.Printf("Moverwatch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("moverwatch.toml"); err == nil {
			configFiles = append(configFiles, "moverwatch.toml")
		} else if _, err := os.Stat("deployments/local/moverwatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/moverwatch.toml")
		}
	}

	// Startup sequence: defaults -> files -> env -> flags, then logger and banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		common.GetLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *period, common.SplitList(*email))
	if *schedule {
		config.Schedule.Enabled = true
	}

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()
	common.PrintBanner(common.GetVersion())

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("models", config.LLM.Models).
		Str("period", config.Analysis.Period).
		Bool("use_scraper", config.Market.UseScraper).
		Msg("Resolved configuration (sanitized)")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Schedule.Enabled {
		if err := application.StartSchedule(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start scheduler")
			os.Exit(1)
		}
		logger.Info().Str("cron", config.Schedule.Cron).Msg("Waiting for scheduled runs (Ctrl+C to exit)")
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		return
	}

	report, err := application.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Analysis failed")
		application.Close()
		os.Exit(1)
	}

	fmt.Printf("\n%s\n", report.Content)
}
