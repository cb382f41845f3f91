package splits

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
	"github.com/angelmondragon/tipsplit-backend/pkg/enums"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis/redistest"
)

type storeFixture struct {
	db    *gorm.DB
	repo  Repository
	redis *redistest.Client
	cache *Cache
	store *Store
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "splits-test", Output: io.Discard})
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	conn := dbtest.NewSQLite(t)
	repo := NewRepository(conn)
	fake := redistest.New()
	cache, err := NewCache(fake, time.Hour, 0)
	require.NoError(t, err)
	store, err := NewStore(StoreParams{
		Repo:        repo,
		Cache:       cache,
		Logger:      newTestLogger(),
		BacklogSize: 8,
	})
	require.NoError(t, err)
	return &storeFixture{db: conn, repo: repo, redis: fake, cache: cache, store: store}
}

func strPtr(v string) *string {
	return &v
}

func pendingSplit(hash string, base, tip int64, recipient *string) *models.PaymentSplit {
	now := time.Now().UTC()
	return &models.PaymentSplit{
		PaymentHash:     hash,
		TotalAmount:     base + tip,
		BaseAmount:      base,
		TipAmount:       tip,
		TipRecipient:    recipient,
		DisplayCurrency: "USD",
		Memo:            "table 4",
		Status:          enums.SplitStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
