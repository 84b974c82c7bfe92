package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/tasksync/internal/model"
)

// SyncEngineInterface は同期ハンドラーが必要とするエンジンインターフェース。
// 全操作はユーザー単位で直列化され、実行中の再入はSYNC_IN_PROGRESSを返す。
type SyncEngineInterface interface {
	Push(ctx context.Context, userID string) (*model.SyncReport, error)
	Pull(ctx context.Context, userID string) (*model.SyncReport, error)
	FullSync(ctx context.Context, userID string) (*model.SyncReport, error)
	Restore(ctx context.Context, userID string) (*model.SyncReport, error)
}

// SyncStatusReader は同期ステータス表示に必要な参照系インターフェース。
type SyncStatusReader interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	ListConflicts(ctx context.Context, userID string, limit int) ([]*model.ConflictLog, error)
	SyncInProgress(userID string) bool
}

// SyncHandler は同期操作のHTTPハンドラー。
type SyncHandler struct {
	engine SyncEngineInterface
	status SyncStatusReader
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(engine SyncEngineInterface, status SyncStatusReader) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		status: status,
	}
}

// syncReportResponse は同期レポートのレスポンス表現。
type syncReportResponse struct {
	Pushed    int                  `json:"pushed"`
	Inserted  int                  `json:"inserted"`
	Updated   int                  `json:"updated"`
	Skipped   int                  `json:"skipped"`
	Malformed int                  `json:"malformed"`
	Conflicts int                  `json:"conflicts"`
	Failed    []failedEntityDetail `json:"failed"`
}

// failedEntityDetail は失敗エンティティの参照。呼び出し元の再試行判断に使う。
type failedEntityDetail struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason"`
}

func newSyncReportResponse(report *model.SyncReport) syncReportResponse {
	failed := make([]failedEntityDetail, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, failedEntityDetail{
			EntityType: string(f.EntityType),
			EntityID:   f.EntityID,
			Reason:     f.Reason,
		})
	}
	return syncReportResponse{
		Pushed:    report.Pushed,
		Inserted:  report.Inserted,
		Updated:   report.Updated,
		Skipped:   report.Skipped,
		Malformed: report.Malformed,
		Conflicts: report.Conflicts,
		Failed:    failed,
	}
}

func (h *SyncHandler) runSync(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID string) (*model.SyncReport, error)) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	report, err := fn(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncReportResponse(report))
}

// FullSync はpushとpullを順に実行する。
// POST /api/sync/full
func (h *SyncHandler) FullSync(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.engine.FullSync)
}

// Push はローカル変更をリモートへ送信する。
// POST /api/sync/push
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.engine.Push)
}

// Pull はリモート変更をローカルへ取り込む。
// POST /api/sync/pull
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.engine.Pull)
}

// Restore はローカルを破棄してリモートから再構築する。
// POST /api/sync/restore
func (h *SyncHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.engine.Restore)
}

// conflictResponse は競合記録のレスポンス表現。
type conflictResponse struct {
	EntityType      string    `json:"entity_type"`
	EntityID        string    `json:"entity_id"`
	LocalUpdatedAt  time.Time `json:"local_updated_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	Resolution      string    `json:"resolution"`
	DetectedAt      time.Time `json:"detected_at"`
}

// statusResponse はGET /api/sync/statusのレスポンス。
type statusResponse struct {
	LastSyncAt     *time.Time         `json:"last_sync_at"`
	SyncInProgress bool               `json:"sync_in_progress"`
	Conflicts      []conflictResponse `json:"conflicts"`
}

// conflictHistoryLimit はステータス表示で返す競合記録の上限。
const conflictHistoryLimit = 50

// Status は直近の同期時刻と競合履歴を返す。
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.status.GetUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conflicts, err := h.status.ListConflicts(r.Context(), userID, conflictHistoryLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := statusResponse{
		LastSyncAt:     user.LastSyncAt,
		SyncInProgress: h.status.SyncInProgress(userID),
		Conflicts:      make([]conflictResponse, 0, len(conflicts)),
	}
	for _, c := range conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictResponse{
			EntityType:      string(c.EntityType),
			EntityID:        c.EntityID,
			LocalUpdatedAt:  c.LocalUpdatedAt,
			RemoteUpdatedAt: c.RemoteUpdatedAt,
			Resolution:      c.Resolution,
			DetectedAt:      c.DetectedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
