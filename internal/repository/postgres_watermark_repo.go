package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresWatermarkRepo はPostgreSQLを使用したウォーターマークリポジトリ。
type PostgresWatermarkRepo struct {
	db *sql.DB
}

// NewPostgresWatermarkRepo はPostgresWatermarkRepoを生成する。
func NewPostgresWatermarkRepo(db *sql.DB) *PostgresWatermarkRepo {
	return &PostgresWatermarkRepo{db: db}
}

// Get はユーザー×エンティティ種別のウォーターマークを取得する。
// 未記録の場合はゼロ値のPushedAtを持つWatermarkを返す。
func (r *PostgresWatermarkRepo) Get(ctx context.Context, userID string, entityType model.EntityType) (*model.Watermark, error) {
	wm := &model.Watermark{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, entity_type, pushed_at, updated_at
		 FROM sync_watermarks
		 WHERE user_id = $1 AND entity_type = $2`,
		userID, string(entityType),
	).Scan(&wm.UserID, &wm.EntityType, &wm.PushedAt, &wm.UpdatedAt)

	if err == sql.ErrNoRows {
		return &model.Watermark{UserID: userID, EntityType: entityType}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ウォーターマークの取得に失敗しました: %w", err)
	}

	return wm, nil
}

// Advance はウォーターマークをpushedAtへ前進させる。後退はさせない。
func (r *PostgresWatermarkRepo) Advance(ctx context.Context, userID string, entityType model.EntityType, pushedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_watermarks (user_id, entity_type, pushed_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, entity_type) DO UPDATE
		 SET pushed_at = GREATEST(sync_watermarks.pushed_at, EXCLUDED.pushed_at), updated_at = now()`,
		userID, string(entityType), pushedAt,
	)
	if err != nil {
		return fmt.Errorf("ウォーターマークの前進に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WatermarkRepository = (*PostgresWatermarkRepo)(nil)
