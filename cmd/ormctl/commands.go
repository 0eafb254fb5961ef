package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"azureorm/internal/auth"
	"azureorm/internal/config"
	"azureorm/internal/domain"
	"azureorm/internal/ingest"
	"azureorm/internal/publisher"
	"azureorm/internal/schema"
	"azureorm/internal/service"
	"azureorm/internal/storage"
)

// baciAliases maps the short BACI column headers to table columns. Values
// are stored as they appear in the file.
var baciAliases = map[string]string{
	"t": "Year",
	"i": "Exporter",
	"j": "Importer",
	"k": "ProductCode",
	"v": "ValueBillionUSD",
	"q": "Volume",
}

type model[T any] interface {
	*T
	schema.Model
}

func loadCSV[T any, PT model[T]](ctx context.Context, w *storage.Wrapper, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	count := fs.Int64("count", 0, "expected number of rows, for progress reports")
	chunk := fs.Int("chunk", 0, "rows per batch (default from config)")
	progress := fs.Bool("progress", false, "log every committed batch")
	comma := fs.String("comma", ",", "field delimiter")
	baci := fs.Bool("baci", false, "accept BACI short headers (t,i,j,k,v,q)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected one CSV file")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	var zero T
	table := PT(&zero).Table()

	var opts ingest.Options
	if r := []rune(*comma); len(r) > 0 {
		opts.Comma = r[0]
	}
	if *baci {
		opts.Aliases = baciAliases
	}

	inserted, err := storage.BulkInsertMaps[T, PT](ctx, w, ingest.Rows(f, table, opts), storage.BulkOptions{
		ChunkSize:      *chunk,
		ReportProgress: *progress,
		ExpectedCount:  *count,
	})
	if err != nil {
		return err
	}

	logger.Info("load finished", "table", table.Name, "file", fs.Arg(0), "inserted", inserted)
	return nil
}

func importSummaries(ctx context.Context, cfg *config.Config, w *storage.Wrapper, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("expected one CSV file")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	var summaries []*domain.NewsSummary
	for fields, err := range ingest.Rows(f, domain.NewsSummary{}.Table(), ingest.Options{}) {
		if err != nil {
			return err
		}
		n := &domain.NewsSummary{}
		if id, ok := n.DeriveFields(fields)["id"]; ok {
			fields["id"] = id
		}
		if err := schema.AssignAll(n, fields); err != nil {
			return err
		}
		summaries = append(summaries, n)
	}

	svc, closePublisher, err := summaryService(cfg, w, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	stats := svc.SaveAll(ctx, summaries)
	if stats.Errors > 0 {
		return fmt.Errorf("%d of %d summaries failed", stats.Errors, stats.Received)
	}
	return nil
}

func deleteSummary(ctx context.Context, cfg *config.Config, w *storage.Wrapper, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return errors.New("expected one URL")
	}

	svc, closePublisher, err := summaryService(cfg, w, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	deleted, err := svc.DeleteByURL(ctx, args[0])
	if err != nil {
		return err
	}
	logger.Info("delete finished", "url", args[0], "deleted", deleted)
	return nil
}

func summaryService(cfg *config.Config, w *storage.Wrapper, logger *slog.Logger) (*service.SummaryService, func(), error) {
	store := storage.NewSummaryStore(w)
	if !cfg.RabbitMQ.Enabled {
		return service.NewSummaryService(store, w, nil, logger), func() {}, nil
	}

	rabbitMQ, err := publisher.NewRabbitMQ(cfg.RabbitMQ, logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := rabbitMQ.Close(); err != nil {
			logger.Warn("close rabbitmq", "error", err)
		}
	}
	return service.NewSummaryService(store, w, rabbitMQ, logger), closer, nil
}

// printToken writes the ODBC pre-connect attribute for a fresh token, for
// tools that connect through the ODBC driver instead of go-mssqldb.
func printToken(ctx context.Context, tokens *auth.Refresher, out io.Writer) error {
	tok, err := tokens.Token(ctx)
	if err != nil {
		return err
	}
	encoded, err := auth.EncodeAccessToken(tok)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "attribute=%d\nvalue=%s\n",
		auth.SQLCopySSAccessToken, base64.StdEncoding.EncodeToString(encoded))
	return err
}
