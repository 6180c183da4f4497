package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/mediagate/internal/model"
)

// PostgresFavoriteRepo はPostgreSQLを使用したお気に入りリポジトリ。
type PostgresFavoriteRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteRepo はPostgresFavoriteRepoを生成する。
func NewPostgresFavoriteRepo(db *sql.DB) *PostgresFavoriteRepo {
	return &PostgresFavoriteRepo{db: db}
}

// Create はお気に入りを登録する。重複登録は冪等に成功する。
func (r *PostgresFavoriteRepo) Create(ctx context.Context, userID, mediaItemID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites (user_id, media_item_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		userID, mediaItemID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert favorite: %w", err)
	}
	return nil
}

// Delete はお気に入りを解除する。未登録の場合もエラーにしない。
func (r *PostgresFavoriteRepo) Delete(ctx context.Context, userID, mediaItemID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND media_item_id = $2`,
		userID, mediaItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	return nil
}

// CountByUserID はユーザーのお気に入り件数を返す。
func (r *PostgresFavoriteRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorites WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count favorites: %w", err)
	}
	return count, nil
}

// ListByUserID はユーザーのお気に入りメディア一覧をcreated_at降順で返す。
func (r *PostgresFavoriteRepo) ListByUserID(ctx context.Context, userID string) ([]*model.MediaItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.title, m.kind, m.description, m.source_path,
		        m.thumbnail_url, m.thumbnail_data, m.thumbnail_mime,
		        m.restricted, m.created_at, m.updated_at
		 FROM media_items m
		 JOIN favorites f ON f.media_item_id = m.id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var items []*model.MediaItem
	for rows.Next() {
		item := &model.MediaItem{}
		if err := rows.Scan(&item.ID, &item.Title, &item.Kind, &item.Description,
			&item.SourcePath, &item.ThumbnailURL, &item.ThumbnailData,
			&item.ThumbnailMime, &item.Restricted, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite media item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}

	return items, nil
}

// compile-time interface check
var _ FavoriteRepository = (*PostgresFavoriteRepo)(nil)
