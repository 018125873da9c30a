package normalizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/statementdesk/statement-desk/internal/domain/statement"
)

// Match types accepted by an override.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchRegex    = "regex"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MerchantOverride represents a user's correction for a merchant
type MerchantOverride struct {
	ID            uuid.UUID  `json:"id"`
	UserID        string     `json:"user_id"`
	MatchPattern  string     `json:"match_pattern"`
	MatchType     string     `json:"match_type" validate:"oneof=exact contains regex"`
	MerchantName  string     `json:"merchant_name"`
	Category      *string    `json:"category,omitempty"`
	Subcategory   *string    `json:"subcategory,omitempty"`
	MatchCount    int        `json:"match_count"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Matches reports whether the override applies to a raw description.
// An invalid regex never matches.
func (o MerchantOverride) Matches(raw string) bool {
	if raw == "" || o.MatchPattern == "" {
		return false
	}
	switch o.MatchType {
	case MatchExact:
		return strings.EqualFold(strings.TrimSpace(raw), strings.TrimSpace(o.MatchPattern))
	case MatchContains:
		return strings.Contains(strings.ToUpper(raw), strings.ToUpper(o.MatchPattern))
	case MatchRegex:
		re, err := regexp.Compile("(?i)" + o.MatchPattern)
		if err != nil {
			return false
		}
		return re.MatchString(raw)
	}
	return false
}

// Overrides is a user's override list in priority order.
type Overrides []MerchantOverride

// Match returns the first override that applies to raw, or nil.
func (l Overrides) Match(raw string) *MerchantOverride {
	for i := range l {
		if l[i].Matches(raw) {
			return &l[i]
		}
	}
	return nil
}

// MatchMerchant is Match over either the raw description or the merchant
// name it normalizes to, so corrections saved against a canonical name
// still reach its aliases.
func (l Overrides) MatchMerchant(raw, normalized string) *MerchantOverride {
	for i := range l {
		if l[i].Matches(raw) || l[i].Matches(normalized) {
			return &l[i]
		}
	}
	return nil
}

// OverrideStore manages user merchant overrides in the database
type OverrideStore struct {
	db DB
}

// NewOverrideStore creates a new override store
func NewOverrideStore(db DB) *OverrideStore {
	return &OverrideStore{db: db}
}

const overrideColumns = `id, user_id, match_pattern, match_type, merchant_name, category,
			subcategory, match_count, last_matched_at, created_at, updated_at`

// SaveOverride creates or updates a user's merchant override
func (s *OverrideStore) SaveOverride(ctx context.Context, override MerchantOverride) (*MerchantOverride, error) {
	if override.MatchType == "" {
		override.MatchType = MatchContains
	}
	if strings.TrimSpace(override.MatchPattern) == "" {
		return nil, fmt.Errorf("%w: override pattern is empty", statement.ErrValidation)
	}

	query := `
		INSERT INTO user_merchant_overrides (
			user_id, match_pattern, match_type, merchant_name, category, subcategory
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, match_pattern) DO UPDATE SET
			merchant_name = EXCLUDED.merchant_name,
			category = COALESCE(EXCLUDED.category, user_merchant_overrides.category),
			subcategory = COALESCE(EXCLUDED.subcategory, user_merchant_overrides.subcategory),
			updated_at = now()
		RETURNING ` + overrideColumns

	var result MerchantOverride
	err := s.db.QueryRow(ctx, query,
		override.UserID,
		override.MatchPattern,
		override.MatchType,
		override.MerchantName,
		override.Category,
		override.Subcategory,
	).Scan(
		&result.ID, &result.UserID, &result.MatchPattern, &result.MatchType,
		&result.MerchantName, &result.Category, &result.Subcategory,
		&result.MatchCount, &result.LastMatchedAt, &result.CreatedAt, &result.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save merchant override: %w", err)
	}
	return &result, nil
}

// GetOverridesForUser returns all overrides for a user, most used first
func (s *OverrideStore) GetOverridesForUser(ctx context.Context, userID string) (Overrides, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM user_merchant_overrides
		WHERE user_id = $1
		ORDER BY match_count DESC, updated_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant overrides: %w", err)
	}
	defer rows.Close()

	var overrides Overrides
	for rows.Next() {
		var o MerchantOverride
		err := rows.Scan(
			&o.ID, &o.UserID, &o.MatchPattern, &o.MatchType,
			&o.MerchantName, &o.Category, &o.Subcategory,
			&o.MatchCount, &o.LastMatchedAt, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// RecordMatches bumps the match counters of the given overrides.
func (s *OverrideStore) RecordMatches(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE user_merchant_overrides
		SET match_count = match_count + 1, last_matched_at = now()
		WHERE id = ANY($1)
	`
	if _, err := s.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to record override matches: %w", err)
	}
	return nil
}

// DeleteOverride removes an override
func (s *OverrideStore) DeleteOverride(ctx context.Context, userID string, overrideID uuid.UUID) error {
	query := `DELETE FROM user_merchant_overrides WHERE id = $1 AND user_id = $2`
	result, err := s.db.Exec(ctx, query, overrideID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("override %s: %w", overrideID, statement.ErrNotFound)
	}
	return nil
}
