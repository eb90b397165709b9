// Package store opens the disclosure and sentiment repositories for the
// configured driver.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kapsentiment/db"
	"kapsentiment/internal/config"
	"kapsentiment/internal/model"
	"kapsentiment/internal/repository"
)

type Disclosures interface {
	Save(ctx context.Context, d *model.Disclosure) (bool, error)
	SaveMany(ctx context.Context, ds []*model.Disclosure) (int, error)
	FindByID(ctx context.Context, id int64) (*model.Disclosure, error)
	FindByCompanyCode(ctx context.Context, code string, limit int) ([]model.Disclosure, error)
	FindRecent(ctx context.Context, days, limit int) ([]model.Disclosure, error)
	Find(ctx context.Context, f model.DisclosureFilter) ([]model.Disclosure, error)
	Count(ctx context.Context, f model.DisclosureFilter) (int, error)
	FindCandidates(ctx context.Context, f model.CandidateFilter) ([]int64, error)
}

type Sentiments interface {
	Save(ctx context.Context, disclosureID int64, a *model.SentimentAnalysis) error
	FindByDisclosureID(ctx context.Context, disclosureID int64) (*model.SentimentAnalysis, error)
	Find(ctx context.Context, f model.SentimentFilter) ([]model.DisclosureSentiment, error)
	CountBySentiment(ctx context.Context) (map[model.SentimentType]int, error)
	Stats(ctx context.Context) (*model.SentimentStats, error)
}

var (
	_ Disclosures = (*repository.DisclosureRepository)(nil)
	_ Disclosures = (*repository.GormDisclosureRepository)(nil)
	_ Sentiments  = (*repository.SentimentRepository)(nil)
	_ Sentiments  = (*repository.GormSentimentRepository)(nil)
)

// Store bundles both repositories with the handle that backs them.
type Store struct {
	Driver      string
	Disclosures Disclosures
	Sentiments  Sentiments
	close       func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the configured database and makes sure the schema exists.
func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		return openSQLite(cfg.SQLitePath)
	case config.StoreDriverPostgres:
		return openPostgres(ctx, cfg.DatabaseURL, cfg.MaxOpenConns)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, url string, maxOpenConns int) (*Store, error) {
	pool, err := db.Connect(url, maxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	slog.Info("store opened", "driver", config.StoreDriverPostgres)
	return &Store{
		Driver:      config.StoreDriverPostgres,
		Disclosures: repository.NewDisclosureRepository(pool),
		Sentiments:  repository.NewSentimentRepository(pool),
		close:       pool.Close,
	}, nil
}

func openSQLite(path string) (*Store, error) {
	gdb, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	gs, err := repository.NewGormStore(gdb)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	slog.Info("store opened", "driver", config.StoreDriverSQLite, "path", path)
	return &Store{
		Driver:      config.StoreDriverSQLite,
		Disclosures: gs.Disclosures,
		Sentiments:  gs.Sentiments,
		close:       sqlDB.Close,
	}, nil
}
