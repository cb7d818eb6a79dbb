package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
	"github.com/rajivgeraev/flippy-swipe/internal/models"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore реализует Store поверх PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// NewPostgresStore создает хранилище поверх пула соединений
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return tag("Ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return tag("InTx.Begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}

	return tag("InTx.Commit", tx.Commit(ctx))
}

const itemColumns = `id, owner_id, title, description, category, condition, images, status, created_at, updated_at`

func scanItem(row pgx.Row) (models.Item, error) {
	var item models.Item
	var status string
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Category,
		&item.Condition, &item.Images, &status, &item.CreatedAt, &item.UpdatedAt,
	)
	item.Status = models.ItemStatus(status)
	return item, err
}

func (s *PostgresStore) GetItem(ctx context.Context, id uuid.UUID) (models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if s.inTx {
		// Якорь не должен поменять статус до фиксации транзакции
		query += ` FOR SHARE`
	}

	item, err := scanItem(s.q.QueryRow(ctx, query, id))
	if err != nil {
		return models.Item{}, tag("GetItem", err)
	}
	return item, nil
}

func (s *PostgresStore) ListAvailableItems(ctx context.Context, excludeOwnerID uuid.UUID) ([]models.Item, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE status = $1 AND owner_id <> $2
		ORDER BY created_at DESC, id
	`, string(models.ItemAvailable), excludeOwnerID)
	if err != nil {
		return nil, tag("ListAvailableItems", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, tag("ListAvailableItems", err)
		}
		items = append(items, item)
	}
	return items, tag("ListAvailableItems", rows.Err())
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	var user models.User
	err := s.q.QueryRow(ctx, `
		SELECT id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(avatar_url, '')
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.AvatarURL)
	if err != nil {
		return models.User{}, tag("GetUser", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session models.SwipeSession) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO swipe_sessions (id, user_id, trade_anchor_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, session.ID, session.UserID, session.TradeAnchorID, session.CreatedAt)
	return tag("CreateSession", err)
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (models.SwipeSession, error) {
	var session models.SwipeSession
	err := s.q.QueryRow(ctx, `
		SELECT id, user_id, trade_anchor_id, created_at FROM swipe_sessions WHERE id = $1
	`, id).Scan(&session.ID, &session.UserID, &session.TradeAnchorID, &session.CreatedAt)
	if err != nil {
		return models.SwipeSession{}, tag("GetSession", err)
	}
	return session, nil
}

func (s *PostgresStore) PutSwipeRecord(ctx context.Context, record models.SwipeRecord) error {
	if !record.Direction.Valid() {
		return apperr.New(apperr.Validation, "PutSwipeRecord", fmt.Sprintf("недопустимое направление %q", record.Direction))
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO swipe_records (id, session_id, user_id, item_id, direction, swiped_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, record.ID, record.SessionID, record.UserID, record.ItemID, string(record.Direction), record.Timestamp)
	return tag("PutSwipeRecord", err)
}

func (s *PostgresStore) ListSwipeRecords(ctx context.Context, sessionID, userID uuid.UUID) ([]models.SwipeRecord, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, session_id, user_id, item_id, direction, swiped_at
		FROM swipe_records
		WHERE session_id = $1 AND user_id = $2
		ORDER BY swiped_at, id
	`, sessionID, userID)
	if err != nil {
		return nil, tag("ListSwipeRecords", err)
	}
	defer rows.Close()

	var records []models.SwipeRecord
	for rows.Next() {
		var r models.SwipeRecord
		var direction string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.ItemID, &direction, &r.Timestamp); err != nil {
			return nil, tag("ListSwipeRecords", err)
		}
		r.Direction = models.Direction(direction)
		records = append(records, r)
	}
	return records, tag("ListSwipeRecords", rows.Err())
}

const tradeOfferColumns = `id, trade_anchor_id, target_item_id, offering_user_id, trade_anchor_owner_id, target_item_owner_id, status, created_at, updated_at`

func scanTradeOffer(row pgx.Row) (models.TradeOffer, error) {
	var offer models.TradeOffer
	var status string
	err := row.Scan(
		&offer.ID, &offer.TradeAnchorID, &offer.TargetItemID, &offer.OfferingUserID,
		&offer.TradeAnchorOwnerID, &offer.TargetItemOwnerID, &status, &offer.CreatedAt, &offer.UpdatedAt,
	)
	offer.Status = models.TradeOfferStatus(status)
	return offer, err
}

func (s *PostgresStore) FindTradeOffer(ctx context.Context, anchorID, targetID, offeringUserID uuid.UUID) (models.TradeOffer, error) {
	offer, err := scanTradeOffer(s.q.QueryRow(ctx, `
		SELECT `+tradeOfferColumns+`
		FROM trade_offers
		WHERE trade_anchor_id = $1 AND target_item_id = $2 AND offering_user_id = $3 AND status = 'pending'
		LIMIT 1
	`, anchorID, targetID, offeringUserID))
	if err != nil {
		return models.TradeOffer{}, tag("FindTradeOffer", err)
	}
	return offer, nil
}

func (s *PostgresStore) CreateTradeOffer(ctx context.Context, offer models.TradeOffer) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO trade_offers (`+tradeOfferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, offer.ID, offer.TradeAnchorID, offer.TargetItemID, offer.OfferingUserID,
		offer.TradeAnchorOwnerID, offer.TargetItemOwnerID, string(offer.Status), offer.CreatedAt, offer.UpdatedAt)
	return tag("CreateTradeOffer", err)
}

func (s *PostgresStore) ListTradeOffers(ctx context.Context, userID uuid.UUID) ([]models.TradeOffer, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+tradeOfferColumns+`
		FROM trade_offers
		WHERE offering_user_id = $1 OR target_item_owner_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, tag("ListTradeOffers", err)
	}
	defer rows.Close()

	var offers []models.TradeOffer
	for rows.Next() {
		offer, err := scanTradeOffer(rows)
		if err != nil {
			return nil, tag("ListTradeOffers", err)
		}
		offers = append(offers, offer)
	}
	return offers, tag("ListTradeOffers", rows.Err())
}

func (s *PostgresStore) CreateNotification(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "CreateNotification", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, trade_offer_id, payload, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, string(n.Type), n.TradeOfferID, payload, n.IsRead, n.CreatedAt)
	return tag("CreateNotification", err)
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.q.Query(ctx, `
		SELECT id, user_id, type, trade_offer_id, payload, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, tag("ListNotifications", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var typ string
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.TradeOfferID, &payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, tag("ListNotifications", err)
		}
		n.Type = models.NotificationType(typ)
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "ListNotifications", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, tag("ListNotifications", rows.Err())
}

var _ Store = (*PostgresStore)(nil)
