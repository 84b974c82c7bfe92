package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresConflictRepo はPostgreSQLを使用した競合記録リポジトリ。
type PostgresConflictRepo struct {
	db *sql.DB
}

// NewPostgresConflictRepo はPostgresConflictRepoを生成する。
func NewPostgresConflictRepo(db *sql.DB) *PostgresConflictRepo {
	return &PostgresConflictRepo{db: db}
}

// Create は競合解決レコードを記録する。
func (r *PostgresConflictRepo) Create(ctx context.Context, c *model.ConflictLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conflict_log (id, user_id, entity_type, entity_id, local_updated_at, remote_updated_at, resolution, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, string(c.EntityType), c.EntityID,
		c.LocalUpdatedAt, c.RemoteUpdatedAt, c.Resolution, c.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("競合レコードの記録に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの競合レコードをdetected_at降順で最大limit件返す。
func (r *PostgresConflictRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ConflictLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, local_updated_at, remote_updated_at, resolution, detected_at
		 FROM conflict_log
		 WHERE user_id = $1
		 ORDER BY detected_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("競合レコード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var conflicts []*model.ConflictLog
	for rows.Next() {
		c := &model.ConflictLog{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.EntityType, &c.EntityID,
			&c.LocalUpdatedAt, &c.RemoteUpdatedAt, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("競合レコード行の読み取りに失敗しました: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("競合レコード一覧の走査に失敗しました: %w", err)
	}

	return conflicts, nil
}

// compile-time interface check
var _ ConflictRepository = (*PostgresConflictRepo)(nil)
