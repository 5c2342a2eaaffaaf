package postgres

import (
	"context"
	"database/sql"

	"civicstream/internal/core/domain"
)

// Per-user retention cap; oldest read entries are pruned past this.
const maxPerUser = 200

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) ListByUser(
	ctx context.Context,
	userID string,
) ([]domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, type, message, read, created_at,
		       COALESCE(related_entity, ''), COALESCE(icon, '')
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Message,
			&n.Read,
			&n.CreatedAt,
			&n.RelatedEntity,
			&n.Icon,
		); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// Create inserts the entry and prunes the user's tail past the
// retention cap. Run inside a TxManager closure so both statements
// commit together.
func (r *NotificationRepo) Create(
	ctx context.Context,
	userID string,
	n *domain.Notification,
) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, type, message, read, created_at, related_entity, icon
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
	`,
		n.ID,
		userID,
		n.Type,
		n.Message,
		n.Read,
		n.CreatedAt,
		n.RelatedEntity,
		n.Icon,
	)
	if err != nil {
		return err
	}
	_, err = exec.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE user_id = $1 AND id IN (
			SELECT id FROM notifications
			WHERE user_id = $1 AND read = true
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		)
	`, userID, maxPerUser)
	return err
}

func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE notifications SET read = true
		WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) error {
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		UPDATE notifications SET read = true
		WHERE user_id = $1 AND read = false
	`, userID)
	return err
}

func (r *NotificationRepo) Delete(ctx context.Context, userID, id string) error {
	exec := GetExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
