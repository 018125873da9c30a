package export

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

const (
	MimeCSV   = "text/csv; charset=utf-8"
	MimeExcel = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultBaseName = "transactions"
)

// Exporter renders transactions to downloadable files.
type Exporter struct {
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// Export renders txs in the requested format. Amounts are signed on output:
// debits negative, credits positive. baseName is usually the uploaded file
// name and loses any .pdf extension.
func (e *Exporter) Export(txs []statement.Transaction, format statement.Format, scope statement.Scope, baseName string) (*statement.ExportArtifact, error) {
	if scope == "" {
		scope = statement.ScopeSingle
	}

	var (
		content []byte
		mime    string
		ext     string
		err     error
	)
	switch format {
	case statement.FormatCSV:
		content, err = writeCSV(txs, scope)
		mime, ext = MimeCSV, ".csv"
	case statement.FormatExcel:
		content, err = writeExcel(txs, scope)
		mime, ext = MimeExcel, ".xlsx"
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", statement.ErrValidation, format)
	}
	if err != nil {
		e.logger.Error("export failed", "format", format, "scope", scope, "rows", len(txs), "error", err)
		return nil, fmt.Errorf("export %s: %w", format, err)
	}

	name := FileName(baseName, ext)
	e.logger.Info("export rendered", "format", format, "scope", scope, "rows", len(txs), "bytes", len(content), "file", name)
	return &statement.ExportArtifact{Content: content, MimeType: mime, FileName: name}, nil
}

// FileName derives the download name from an uploaded file name.
func FileName(baseName, ext string) string {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(baseName, "\\", "/")))
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		name = name[:len(name)-len(".pdf")]
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '/', ':', '*', '?', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." {
		name = defaultBaseName
	}
	return name + ext
}
