package db

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS disclosures (
		id              BIGSERIAL PRIMARY KEY,
		company_code    VARCHAR(10) NOT NULL,
		company_name    TEXT NOT NULL DEFAULT '',
		disclosure_type TEXT NOT NULL DEFAULT '',
		disclosure_date TIMESTAMPTZ,
		title           TEXT NOT NULL DEFAULT '',
		summary         TEXT NOT NULL DEFAULT '',
		data            JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (company_code, disclosure_date, title)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_disclosures_company_code ON disclosures (company_code)`,
	`CREATE INDEX IF NOT EXISTS idx_disclosures_disclosure_date ON disclosures (disclosure_date DESC)`,
	`CREATE TABLE IF NOT EXISTS disclosure_sentiment (
		id                BIGSERIAL PRIMARY KEY,
		disclosure_id     BIGINT NOT NULL UNIQUE REFERENCES disclosures (id) ON DELETE CASCADE,
		overall_sentiment VARCHAR(10) NOT NULL,
		confidence        NUMERIC(4, 3) NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		impact_horizon    VARCHAR(20) NOT NULL,
		key_drivers       TEXT[] NOT NULL DEFAULT '{}',
		risk_flags        TEXT[] NOT NULL DEFAULT '{}',
		tone_descriptors  TEXT[] NOT NULL DEFAULT '{}',
		target_audience   TEXT,
		analysis_text     TEXT NOT NULL,
		analyzed_at       TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_disclosure_sentiment_overall ON disclosure_sentiment (overall_sentiment)`,
}

// Migrate creates the tables and indexes when they do not exist yet.
func Migrate(ctx context.Context, pool *sql.DB) error {
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}
