// Package notify sends batch completion emails through Resend.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"

	"github.com/statementdesk/statement-desk/pkg/money"
)

// Sender is the part of the Resend emails service the mailer uses.
type Sender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// FileSummary is one document of a finished batch.
type FileSummary struct {
	Name         string
	Succeeded    bool
	Transactions int
	Error        string
}

// BatchSummary describes a finished batch job.
type BatchSummary struct {
	JobID    string
	Files    []FileSummary
	Debits   decimal.Decimal
	Credits  decimal.Decimal
	Currency string
}

// Succeeded counts the files that produced transactions.
func (s BatchSummary) Succeeded() int {
	n := 0
	for _, f := range s.Files {
		if f.Succeeded {
			n++
		}
	}
	return n
}

// Mailer sends notification emails. A Mailer without a sender logs and
// skips every message.
type Mailer struct {
	sender Sender
	from   string
	logger *slog.Logger
}

// NewMailer creates a mailer. An empty apiKey disables sending.
func NewMailer(apiKey, from string, logger *slog.Logger) *Mailer {
	m := &Mailer{from: from, logger: logger}
	if apiKey != "" {
		m.sender = resend.NewClient(apiKey).Emails
	}
	return m
}

// NewMailerWithSender creates a mailer around an existing sender.
func NewMailerWithSender(sender Sender, from string, logger *slog.Logger) *Mailer {
	return &Mailer{sender: sender, from: from, logger: logger}
}

// Enabled reports whether messages are actually sent.
func (m *Mailer) Enabled() bool {
	return m != nil && m.sender != nil
}

// SendBatchSummary emails the outcome of a batch job to one recipient.
func (m *Mailer) SendBatchSummary(ctx context.Context, to string, summary BatchSummary) error {
	if !m.Enabled() {
		m.logger.Warn("resend client not configured, skipping batch email", "job_id", summary.JobID)
		return nil
	}
	if to == "" {
		return fmt.Errorf("recipient is required")
	}

	html, err := renderBatchSummary(summary)
	if err != nil {
		return err
	}

	_, err = m.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: fmt.Sprintf("Statement batch finished: %d of %d converted", summary.Succeeded(), len(summary.Files)),
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to send batch email: %w", err)
	}
	m.logger.Info("batch email sent", "job_id", summary.JobID, "files", len(summary.Files))
	return nil
}

var batchTemplate = template.Must(template.New("batch").Parse(`
<!DOCTYPE html>
<html>
<head>
  <style>
    body { background-color: #050505; font-family: 'Outfit', sans-serif; margin: 0; padding: 40px 0; }
    .container { background-color: #0A0A0B; border: 1px solid rgba(255,255,255,0.1); border-radius: 12px; padding: 40px; max-width: 520px; margin: 0 auto; }
    .topLabel { color: #2da6fa; font-size: 12px; font-weight: 700; letter-spacing: 2px; text-align: center; }
    h1 { color: #ffffff; font-size: 24px; font-weight: 900; text-align: center; margin: 20px 0; }
    .text { color: #9ca3af; font-size: 14px; line-height: 22px; }
    .ok { color: #34d399; }
    .failed { color: #f87171; }
    .totals { background: rgba(255,255,255,0.05); border-radius: 8px; padding: 20px; margin: 30px 0; color: #ffffff; }
  </style>
</head>
<body>
  <div class="container">
    <p class="topLabel">BATCH {{.JobID}}</p>
    <h1>{{.Succeeded}} of {{.Total}} statements converted</h1>
    <ul class="text">
    {{- range .Files}}
      <li>{{.Name}}: {{if .Succeeded}}<span class="ok">{{.Transactions}} transactions</span>{{else}}<span class="failed">{{.Error}}</span>{{end}}</li>
    {{- end}}
    </ul>
    <div class="totals">
      <p>Money out: {{.Debits}}</p>
      <p>Money in: {{.Credits}}</p>
    </div>
  </div>
</body>
</html>
`))

func renderBatchSummary(s BatchSummary) (string, error) {
	var buf bytes.Buffer
	err := batchTemplate.Execute(&buf, struct {
		JobID     string
		Succeeded int
		Total     int
		Files     []FileSummary
		Debits    string
		Credits   string
	}{
		JobID:     s.JobID,
		Succeeded: s.Succeeded(),
		Total:     len(s.Files),
		Files:     s.Files,
		Debits:    money.Format(s.Debits, s.Currency),
		Credits:   money.Format(s.Credits, s.Currency),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render batch email: %w", err)
	}
	return buf.String(), nil
}
