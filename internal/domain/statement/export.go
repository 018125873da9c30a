package statement

import "fmt"

// Format is an export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// Scope selects the column set and extra sheets of an export.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeBulk   Scope = "bulk"
)

// ParseFormat accepts the API spellings of a format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", ErrValidation, s)
}

// ParseScope accepts "single" or "bulk"; empty means single.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "", "single":
		return ScopeSingle, nil
	case "bulk":
		return ScopeBulk, nil
	}
	return "", fmt.Errorf("%w: unknown export scope %q", ErrValidation, s)
}

// ExportArtifact is a rendered export file.
type ExportArtifact struct {
	Content  []byte `json:"-"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
}
