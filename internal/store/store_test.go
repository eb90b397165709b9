package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kapsentiment/internal/config"
	"kapsentiment/internal/model"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.Config{StoreDriver: config.StoreDriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, config.StoreDriverSQLite, st.Driver)

	d, err := model.NewDisclosure(model.DisclosureParams{
		CompanyCode:    "ASELS",
		Title:          "Yeni Sözleşme",
		DisclosureDate: time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	inserted, err := st.Disclosures.Save(ctx, d)
	require.NoError(t, err)
	assert.True(t, inserted)

	found, err := st.Disclosures.FindByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Yeni Sözleşme", found.Title)

	stats, err := st.Sentiments.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

func TestOpen_PostgresNeedsURL(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: config.StoreDriverPostgres})
	assert.Error(t, err)
}
