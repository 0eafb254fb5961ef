package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"azureorm/internal/auth"
	"azureorm/internal/config"
	"azureorm/internal/domain"
	"azureorm/internal/storage"
)

const usage = `usage: ormctl [-config path] <command> [args]

commands:
  create-tables                 create every table that does not exist yet
  drop-tables                   drop every table
  load-trade <file.csv>         bulk load BaciSparseTradeVolume
  load-products <file.csv>      bulk load BaciTradeByProduct
  load-countries <file.csv>     bulk load CountryInfo
  import-summaries <file.csv>   upsert news summaries by URL and publish changes
  delete-summary <url>          delete the news summary stored for url
  token                         print the ODBC access token attribute
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string, args []string) error {
	var tokens *auth.Refresher
	if cfg.Auth.Mode == config.AuthManagedIdentity {
		cred, err := auth.NewDefaultAzureCredential()
		if err != nil {
			return err
		}
		tokens = auth.NewRefresher(cred, cfg.Auth.Audience, cfg.Auth.TokenTimeout, logger)
	}

	if command == "token" {
		if tokens == nil {
			return fmt.Errorf("token needs auth.mode %s", config.AuthManagedIdentity)
		}
		return printToken(ctx, tokens, os.Stdout)
	}

	var source storage.TokenSource
	if tokens != nil {
		source = tokens
	}
	db, err := storage.Open(ctx, *cfg, source, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, err := domain.NewRegistry()
	if err != nil {
		return err
	}
	w, err := storage.New(db, registry, cfg.Bulk, logger)
	if err != nil {
		return err
	}

	switch command {
	case "create-tables":
		return w.CreateTables(ctx)
	case "drop-tables":
		return w.DropTables(ctx)
	case "load-trade":
		return loadCSV[domain.TradeVolumeByCountryPair](ctx, w, logger, args)
	case "load-products":
		return loadCSV[domain.TradeVolumeByProduct](ctx, w, logger, args)
	case "load-countries":
		return loadCSV[domain.CountryInfo](ctx, w, logger, args)
	case "import-summaries":
		return importSummaries(ctx, cfg, w, logger, args)
	case "delete-summary":
		return deleteSummary(ctx, cfg, w, logger, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
