package swipe

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rajivgeraev/flippy-swipe/internal/connectivity"
	"github.com/rajivgeraev/flippy-swipe/internal/localcache"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
	"github.com/rajivgeraev/flippy-swipe/internal/remote"
	"github.com/rajivgeraev/flippy-swipe/internal/retry"
)

var testPolicy = retry.Policy{
	MaxRetries:    2,
	InitialDelay:  time.Millisecond,
	MaxDelay:      2 * time.Millisecond,
	BackoffFactor: 2,
}

type fixture struct {
	store    *remote.MemoryStore
	kv       *localcache.KV
	caches   Caches
	signal   *connectivity.Manual
	history  *HistoryStore
	sessions *SessionManager
	builder  *PoolBuilder
	match    *MatchPipeline
	log      *zap.Logger
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kv, err := localcache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	f := &fixture{
		store:  remote.NewMemoryStore(),
		kv:     kv,
		caches: CachesFrom(kv),
		signal: connectivity.NewManual(true),
		log:    log,
		logs:   logs,
	}
	f.history = NewHistoryStore(f.store, f.caches, testPolicy, f.signal, log)
	f.sessions = NewSessionManager(f.store, f.caches, testPolicy, log)
	f.builder = NewPoolBuilder(f.store, f.history, testPolicy)
	f.match = NewMatchPipeline(f.store, log)
	return f
}

func (f *fixture) item(owner uuid.UUID, title string) models.Item {
	item := models.Item{
		ID:      uuid.New(),
		OwnerID: owner,
		Title:   title,
		Images:  []string{"https://img.example/" + title + ".jpg"},
		Status:  models.ItemAvailable,
	}
	f.store.PutItem(item)
	return item
}

func (f *fixture) syncEngine(userID uuid.UUID) *SyncEngine {
	return NewSyncEngine(f.store, f.caches(userID), testPolicy, f.log)
}

func (f *fixture) pending(t *testing.T, userID uuid.UUID) []models.PendingSwipe {
	t.Helper()
	queue, err := f.caches(userID).ListPendingSwipes()
	require.NoError(t, err)
	return queue
}

func itemIDs(items []models.Item) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}
