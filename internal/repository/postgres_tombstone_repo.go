package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// PostgresTombstoneRepo はPostgreSQLを使用した削除マーカーリポジトリ。
type PostgresTombstoneRepo struct {
	db *sql.DB
}

// NewPostgresTombstoneRepo はPostgresTombstoneRepoを生成する。
func NewPostgresTombstoneRepo(db *sql.DB) *PostgresTombstoneRepo {
	return &PostgresTombstoneRepo{db: db}
}

// Record は削除マーカーを記録する。既に存在する場合はdeleted_atを更新しpushedをリセットする。
func (r *PostgresTombstoneRepo) Record(ctx context.Context, ts *model.Tombstone) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tombstones (entity_type, entity_id, user_id, deleted_at, pushed)
		 VALUES ($1, $2, $3, $4, false)
		 ON CONFLICT (entity_type, entity_id) DO UPDATE
		 SET deleted_at = EXCLUDED.deleted_at, pushed = false`,
		string(ts.EntityType), ts.EntityID, ts.UserID, ts.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("削除マーカーの記録に失敗しました: %w", err)
	}
	return nil
}

// ListUnpushed はユーザーの未push削除マーカーをdeleted_at昇順で返す。
func (r *PostgresTombstoneRepo) ListUnpushed(ctx context.Context, userID string) ([]*model.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entity_type, entity_id, user_id, deleted_at, pushed
		 FROM tombstones
		 WHERE user_id = $1 AND pushed = false
		 ORDER BY deleted_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("削除マーカー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tombstones []*model.Tombstone
	for rows.Next() {
		ts := &model.Tombstone{}
		if err := rows.Scan(&ts.EntityType, &ts.EntityID, &ts.UserID, &ts.DeletedAt, &ts.Pushed); err != nil {
			return nil, fmt.Errorf("削除マーカー行の読み取りに失敗しました: %w", err)
		}
		tombstones = append(tombstones, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("削除マーカー一覧の走査に失敗しました: %w", err)
	}

	return tombstones, nil
}

// MarkPushed は削除マーカーをpush済みに更新する。
func (r *PostgresTombstoneRepo) MarkPushed(ctx context.Context, entityType model.EntityType, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tombstones SET pushed = true WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID,
	)
	if err != nil {
		return fmt.Errorf("削除マーカーのpush済み更新に失敗しました: %w", err)
	}
	return nil
}

// Find は指定エンティティの削除マーカーを取得する。見つからない場合はnilを返す。
func (r *PostgresTombstoneRepo) Find(ctx context.Context, entityType model.EntityType, entityID string) (*model.Tombstone, error) {
	ts := &model.Tombstone{}
	err := r.db.QueryRowContext(ctx,
		`SELECT entity_type, entity_id, user_id, deleted_at, pushed
		 FROM tombstones
		 WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID,
	).Scan(&ts.EntityType, &ts.EntityID, &ts.UserID, &ts.DeletedAt, &ts.Pushed)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("削除マーカーの取得に失敗しました: %w", err)
	}

	return ts, nil
}

// PrunePushedBefore はpush済みかつdeleted_atがcutoffより古いマーカーを削除し、件数を返す。
func (r *PostgresTombstoneRepo) PrunePushedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tombstones WHERE pushed = true AND deleted_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("削除マーカーの掃除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return int(rowsAffected), nil
}

// compile-time interface check
var _ TombstoneRepository = (*PostgresTombstoneRepo)(nil)
