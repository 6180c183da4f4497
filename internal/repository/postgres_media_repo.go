package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mediagate/internal/model"
)

// PostgresMediaRepo はPostgreSQLを使用したメディアカタログリポジトリ。
type PostgresMediaRepo struct {
	db *sql.DB
}

// NewPostgresMediaRepo はPostgresMediaRepoを生成する。
func NewPostgresMediaRepo(db *sql.DB) *PostgresMediaRepo {
	return &PostgresMediaRepo{db: db}
}

// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
func (r *PostgresMediaRepo) FindByID(ctx context.Context, id string) (*model.MediaItem, error) {
	item := &model.MediaItem{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, kind, description, source_path, thumbnail_url,
		        thumbnail_data, thumbnail_mime, restricted, created_at, updated_at
		 FROM media_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Title, &item.Kind, &item.Description, &item.SourcePath,
		&item.ThumbnailURL, &item.ThumbnailData, &item.ThumbnailMime,
		&item.Restricted, &item.CreatedAt, &item.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find media item: %w", err)
	}

	return item, nil
}

// List は条件に一致するメディア一覧をcreated_at降順で取得する。
func (r *PostgresMediaRepo) List(ctx context.Context, opts ListMediaOptions) ([]*model.MediaItem, error) {
	query := `SELECT DISTINCT m.id, m.title, m.kind, m.description, m.source_path,
	                 m.thumbnail_url, m.thumbnail_data, m.thumbnail_mime,
	                 m.restricted, m.created_at, m.updated_at
	          FROM media_items m`
	var args []interface{}
	var conds []string

	if opts.TagID != "" {
		query += ` JOIN media_item_tags mt ON mt.media_item_id = m.id`
		args = append(args, opts.TagID)
		conds = append(conds, fmt.Sprintf("mt.tag_id = $%d", len(args)))
	}
	if opts.Kind != "" {
		args = append(args, opts.Kind)
		conds = append(conds, fmt.Sprintf("m.kind = $%d", len(args)))
	}
	if !opts.IncludeRestricted {
		conds = append(conds, "m.restricted = false")
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY m.created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media items: %w", err)
	}
	defer rows.Close()

	var items []*model.MediaItem
	for rows.Next() {
		item := &model.MediaItem{}
		if err := rows.Scan(&item.ID, &item.Title, &item.Kind, &item.Description,
			&item.SourcePath, &item.ThumbnailURL, &item.ThumbnailData,
			&item.ThumbnailMime, &item.Restricted, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media items: %w", err)
	}

	return items, nil
}

// Create はメディアを作成する。
func (r *PostgresMediaRepo) Create(ctx context.Context, item *model.MediaItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media_items (id, title, kind, description, source_path,
		        thumbnail_url, thumbnail_data, thumbnail_mime, restricted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.Title, item.Kind, item.Description, item.SourcePath,
		item.ThumbnailURL, item.ThumbnailData, item.ThumbnailMime,
		item.Restricted, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}
	return nil
}

// Update はメディアを上書き更新する。
func (r *PostgresMediaRepo) Update(ctx context.Context, item *model.MediaItem) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_items
		 SET title = $2, kind = $3, description = $4, source_path = $5,
		     thumbnail_url = $6, thumbnail_data = $7, thumbnail_mime = $8,
		     restricted = $9, updated_at = $10
		 WHERE id = $1`,
		item.ID, item.Title, item.Kind, item.Description, item.SourcePath,
		item.ThumbnailURL, item.ThumbnailData, item.ThumbnailMime,
		item.Restricted, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update media item: %w", err)
	}
	return nil
}

// UpdateThumbnail はサムネイル画像データとMIMEタイプのみを更新する。
func (r *PostgresMediaRepo) UpdateThumbnail(ctx context.Context, mediaID string, data []byte, mimeType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_items SET thumbnail_data = $2, thumbnail_mime = $3, updated_at = $4 WHERE id = $1`,
		mediaID, data, mimeType, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update thumbnail: %w", err)
	}
	return nil
}

// ListTags は全タグをname昇順で取得する。
func (r *PostgresMediaRepo) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM tags ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}

	return tags, nil
}

// TagsByMediaID は指定メディアに付与されたタグを取得する。
func (r *PostgresMediaRepo) TagsByMediaID(ctx context.Context, mediaID string) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name
		 FROM tags t
		 JOIN media_item_tags mt ON mt.tag_id = t.id
		 WHERE mt.media_item_id = $1
		 ORDER BY t.name ASC`,
		mediaID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list media tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate media tags: %w", err)
	}

	return tags, nil
}

// ReplaceTags はメディアのタグ付けを同一トランザクションで入れ替える。
// 未登録のタグ名は新規作成する。
func (r *PostgresMediaRepo) ReplaceTags(ctx context.Context, mediaID string, tagNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存のタグ付けを全て削除
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media_item_tags WHERE media_item_id = $1`,
		mediaID,
	); err != nil {
		return fmt.Errorf("failed to clear media tags: %w", err)
	}

	for _, name := range tagNames {
		// タグを取得または作成（nameの一意制約でUPSERT）
		var tagID string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO tags (id, name) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			uuid.New().String(), name,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO media_item_tags (media_item_id, tag_id, created_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			mediaID, tagID, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to insert media tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ MediaRepository = (*PostgresMediaRepo)(nil)
