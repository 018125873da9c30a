package statement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_SignedAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		typ    TransactionType
		want   string
	}{
		{"debit magnitude becomes negative", "125.67", Debit, "-125.67"},
		{"debit stored negative stays negative", "-125.67", Debit, "-125.67"},
		{"credit positive", "2500", Credit, "2500"},
		{"credit stored negative is normalised", "-40.10", Credit, "40.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{Amount: decimal.RequireFromString(tt.amount), Type: tt.typ}
			assert.True(t, decimal.RequireFromString(tt.want).Equal(tx.SignedAmount()))
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{ErrOCRNotConfigured, KindConfiguration},
		{fmt.Errorf("page 3: %w", ErrOCRAuth), KindConfiguration},
		{fmt.Errorf("storage: %w", ErrFeatureDisabled), KindConfiguration},
		{fmt.Errorf("page 3: %w", ErrOCRQuotaExceeded), KindQuota},
		{ErrRateLimited, KindQuota},
		{fmt.Errorf("open: %w", ErrInvalidPDF), KindValidation},
		{ErrNoTransactions, KindNoTransactions},
		{fmt.Errorf("parse: %w", context.DeadlineExceeded), KindTimeout},
		{ErrNotFound, KindNotFound},
		{errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}

	assert.True(t, Retryable(ErrOCRQuotaExceeded))
	assert.False(t, Retryable(ErrOCRAuth))
}

func TestLayout_JSON(t *testing.T) {
	meta := Metadata{Layout: Recognized{BankFormat: "iso"}, ProcessingTime: 1500 * time.Millisecond}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1500), decoded["processingTimeMs"])
	layout := decoded["layout"].(map[string]any)
	assert.Equal(t, "recognized", layout["kind"])
	assert.Equal(t, "iso", layout["bankFormat"])

	assert.Equal(t, "unrecognized:fallback", Unrecognized{FallbackUsed: true}.Name())
}

func TestFailed(t *testing.T) {
	res := Failed(ErrNoTransactions, Metadata{ExtractionMethod: MethodNative})
	assert.False(t, res.Success)
	assert.Empty(t, res.Transactions)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, KindNoTransactions, res.ErrorKind)
}

func TestParseFormatAndScope(t *testing.T) {
	f, err := ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatExcel, f)

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrValidation)

	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeSingle, s)
}
