package remote

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/db"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

// newTestPool поднимает PostgreSQL в контейнере и применяет миграции
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("интеграционный тест с PostgreSQL")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("swipe_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	require.NoError(t, db.Migrate(dsn, log))

	pool, err := db.InitDB(ctx, dsn, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `INSERT INTO users (id, first_name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err)
	return id
}

func seedItem(t *testing.T, pool *pgxpool.Pool, owner uuid.UUID, title string, status models.ItemStatus, createdAt time.Time) models.Item {
	t.Helper()
	item := models.Item{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     title,
		Images:    []string{"https://img.example/" + title + ".jpg"},
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	_, err := pool.Exec(context.Background(), `
		INSERT INTO items (id, owner_id, title, images, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, item.ID, item.OwnerID, item.Title, item.Images, string(item.Status), createdAt)
	require.NoError(t, err)
	return item
}

func TestPostgresStore(t *testing.T) {
	pool := newTestPool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	alice := seedUser(t, pool, "Alice")
	bob := seedUser(t, pool, "Bob")
	now := time.Now().UTC().Truncate(time.Millisecond)

	anchor := seedItem(t, pool, alice, "bike", models.ItemAvailable, now)
	older := seedItem(t, pool, bob, "guitar", models.ItemAvailable, now.Add(-time.Hour))
	newer := seedItem(t, pool, bob, "lamp", models.ItemAvailable, now)
	seedItem(t, pool, bob, "chair", models.ItemUnavailable, now)

	t.Run("объявления", func(t *testing.T) {
		got, err := store.GetItem(ctx, anchor.ID)
		require.NoError(t, err)
		assert.Equal(t, anchor.Title, got.Title)
		assert.Equal(t, anchor.Images, got.Images)

		_, err = store.GetItem(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		items, err := store.ListAvailableItems(ctx, alice)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, newer.ID, items[0].ID)
		assert.Equal(t, older.ID, items[1].ID)

		user, err := store.GetUser(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "Alice", user.DisplayName())
	})

	session := models.SwipeSession{ID: uuid.New(), UserID: alice, TradeAnchorID: anchor.ID, CreatedAt: now}

	t.Run("сессия в транзакции", func(t *testing.T) {
		err := store.InTx(ctx, func(tx Store) error {
			require.NoError(t, tx.CreateSession(ctx, session))
			return apperr.New(apperr.AnchorUnavailable, "test", "откат")
		})
		assert.ErrorIs(t, err, apperr.ErrAnchorUnavailable)

		_, err = store.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		require.NoError(t, store.InTx(ctx, func(tx Store) error {
			if _, err := tx.GetItem(ctx, anchor.ID); err != nil {
				return err
			}
			return tx.CreateSession(ctx, session)
		}))
		require.NoError(t, store.CreateSession(ctx, session))

		got, err := store.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, anchor.ID, got.TradeAnchorID)
	})

	t.Run("свайпы", func(t *testing.T) {
		first := models.SwipeRecord{ID: uuid.New(), SessionID: session.ID, UserID: alice, ItemID: newer.ID, Direction: models.DirectionLeft, Timestamp: now}
		second := models.SwipeRecord{ID: uuid.New(), SessionID: session.ID, UserID: alice, ItemID: older.ID, Direction: models.DirectionRight, Timestamp: now.Add(time.Second)}

		require.NoError(t, store.PutSwipeRecord(ctx, second))
		require.NoError(t, store.PutSwipeRecord(ctx, first))
		require.NoError(t, store.PutSwipeRecord(ctx, first))

		records, err := store.ListSwipeRecords(ctx, session.ID, alice)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.ID, records[0].ID)
		assert.Equal(t, models.DirectionRight, records[1].Direction)

		// Повторное решение по тому же объявлению тоже попадает в журнал
		repeat := first
		repeat.ID = uuid.New()
		repeat.Direction = models.DirectionRight
		repeat.Timestamp = now.Add(2 * time.Second)
		require.NoError(t, store.PutSwipeRecord(ctx, repeat))

		records, err = store.ListSwipeRecords(ctx, session.ID, alice)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, repeat.ID, records[2].ID)

		orphan := first
		orphan.ID = uuid.New()
		orphan.SessionID = uuid.New()
		err = store.PutSwipeRecord(ctx, orphan)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.False(t, apperr.IsRetryable(err))
	})

	t.Run("предложения и уведомления", func(t *testing.T) {
		offer := models.TradeOffer{
			ID:                 uuid.New(),
			TradeAnchorID:      anchor.ID,
			TargetItemID:       older.ID,
			OfferingUserID:     alice,
			TradeAnchorOwnerID: alice,
			TargetItemOwnerID:  bob,
			Status:             models.TradeOfferPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		require.NoError(t, store.CreateTradeOffer(ctx, offer))

		found, err := store.FindTradeOffer(ctx, anchor.ID, older.ID, alice)
		require.NoError(t, err)
		assert.Equal(t, offer.ID, found.ID)

		_, err = store.FindTradeOffer(ctx, anchor.ID, newer.ID, alice)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		offers, err := store.ListTradeOffers(ctx, bob)
		require.NoError(t, err)
		require.Len(t, offers, 1)

		n := models.Notification{
			ID:           uuid.New(),
			UserID:       bob,
			Type:         models.NotificationTradeOffer,
			TradeOfferID: offer.ID,
			Payload: models.TradeOfferPayload{
				TradeAnchorID:    anchor.ID,
				TradeAnchorTitle: anchor.Title,
				OfferingUserName: "Alice",
			},
			CreatedAt: now,
		}
		require.NoError(t, store.CreateNotification(ctx, n))

		notifications, err := store.ListNotifications(ctx, bob, 10)
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.Equal(t, "Alice", notifications[0].Payload.OfferingUserName)
		assert.Equal(t, models.NotificationTradeOffer, notifications[0].Type)
	})
}
