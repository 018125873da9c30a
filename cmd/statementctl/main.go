// Command statementctl converts one PDF bank statement into CSV or Excel
// without a database.
//
//	statementctl -in statement.pdf -out out.xlsx -format excel -max-pages 20
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/statementdesk/statement-desk/internal/domain/export"
	"github.com/statementdesk/statement-desk/internal/domain/import/pipeline"
	"github.com/statementdesk/statement-desk/internal/domain/import/service"
	"github.com/statementdesk/statement-desk/internal/domain/statement"
	"github.com/statementdesk/statement-desk/pkg/config"
	"github.com/statementdesk/statement-desk/pkg/money"
)

type options struct {
	in       string
	out      string
	format   string
	scope    string
	maxPages int
	ai       bool
	verbose  bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "statementctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("statementctl", flag.ContinueOnError)
	fs.StringVar(&o.in, "in", "", "input PDF statement")
	fs.StringVar(&o.out, "out", "", "output file (default: input name with the format extension)")
	fs.StringVar(&o.format, "format", "", "csv or excel (default: from -out extension, else csv)")
	fs.StringVar(&o.scope, "scope", "single", "single or bulk")
	fs.IntVar(&o.maxPages, "max-pages", 0, "page cap (default from PIPELINE_MAX_PAGES)")
	fs.BoolVar(&o.ai, "ai", false, "use the AI classifier when GEMINI_API_KEY is set")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		return o, fmt.Errorf("-in is required")
	}
	if o.maxPages < 0 {
		return o, fmt.Errorf("-max-pages must not be negative")
	}
	if o.format == "" {
		o.format = "csv"
		if ext := strings.ToLower(filepath.Ext(o.out)); ext == ".xlsx" {
			o.format = "excel"
		}
	}
	return o, nil
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	format, err := statement.ParseFormat(o.format)
	if err != nil {
		return err
	}
	scope, err := statement.ParseScope(o.scope)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	geminiKey := ""
	if o.ai {
		geminiKey = cfg.Gemini.APIKey
	}
	visionKey := ""
	if cfg.VisionEnabled() {
		visionKey = cfg.Vision.APIKey
	}
	p, err := pipeline.Build(ctx, pipeline.Config{
		VisionAPIKey:         visionKey,
		GeminiAPIKey:         geminiKey,
		GeminiModel:          cfg.Gemini.Model,
		MinNativeChars:       cfg.Pipeline.MinNativeChars,
		Timeout:              cfg.Pipeline.Timeout,
		LargeAmountThreshold: cfg.Pipeline.LargeAmountThreshold,
	}, nil, nil, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	data, err := os.ReadFile(o.in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", o.in, err)
	}
	maxPages := o.maxPages
	if maxPages == 0 {
		maxPages = cfg.Pipeline.MaxPages
	}

	res, err := p.Parse(ctx, data, statement.ParseOptions{
		AIEnhanced: o.ai,
		MaxPages:   maxPages,
		FileName:   filepath.Base(o.in),
		OnProgress: func(done, total int) {
			if o.verbose {
				fmt.Fprintf(stderr, "page %d/%d\n", done, total)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("parse %s (%s): %w", o.in, statement.Kind(err), err)
	}

	art, err := p.ExportTransactions(ctx, service.ExportRequest{
		Transactions: res.Transactions,
		Format:       format,
		Scope:        scope,
		BaseName:     filepath.Base(o.in),
	})
	if err != nil {
		return err
	}

	out := o.out
	if out == "" {
		out = filepath.Join(filepath.Dir(o.in), art.FileName)
	}
	if err := os.WriteFile(out, art.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	writeSummary(stderr, res, out)
	return nil
}

func writeSummary(w io.Writer, res *statement.ParseResult, out string) {
	currency := "USD"
	if res.AccountInfo != nil && res.AccountInfo.Currency != "" {
		currency = res.AccountInfo.Currency
	}
	s := export.Summarize(res.Transactions)

	bank := res.BankType
	if bank == "" {
		bank = "unknown bank"
	}
	fmt.Fprintf(w, "%s: %d transactions from %d/%d pages (%s)\n",
		bank, s.TotalTransactions, res.Metadata.PagesProcessed, res.Metadata.PagesTotal, res.Metadata.ExtractionMethod)
	fmt.Fprintf(w, "income %s, expenses %s, net %s\n",
		money.Format(s.TotalIncome, currency),
		money.Format(s.TotalExpenses, currency),
		money.Format(s.NetAmount, currency))
	if res.Metadata.Truncated {
		fmt.Fprintf(w, "warning: only the first %d pages were read\n", res.Metadata.PagesProcessed)
	}
	fmt.Fprintf(w, "wrote %s\n", out)
}
