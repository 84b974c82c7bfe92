package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	ListTasks(ctx context.Context, userID string) ([]*model.Task, error)
	GetTask(ctx context.Context, userID, taskID string) (*model.Task, error)
	CreateTask(ctx context.Context, userID string, input task.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, userID, taskID string, input task.TaskInput) (*model.Task, error)
	CompleteTask(ctx context.Context, userID, taskID string, completed bool) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// TaskHandler はタスクCRUDのHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// taskRequest はタスク作成・更新のリクエストボディ。
// 更新時は指定されたフィールドのみ反映される。
type taskRequest struct {
	Title     *string    `json:"title"`
	Notes     *string    `json:"notes"`
	Completed *bool      `json:"completed"`
	DueAt     *time.Time `json:"due_at"`
	ClearDue  bool       `json:"clear_due"`
}

func (req *taskRequest) toInput() task.TaskInput {
	return task.TaskInput{
		Title:     req.Title,
		Notes:     req.Notes,
		Completed: req.Completed,
		DueAt:     req.DueAt,
		ClearDue:  req.ClearDue,
	}
}

// taskResponse はタスクのレスポンス表現。
type taskResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	Completed bool       `json:"completed"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Completed,
		DueAt:     t.DueAt,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// List はユーザーの全タスクを返す。
// GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.ListTasks(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, newTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": resp})
}

// Get は単一タスクを返す。
// GET /api/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	t, err := h.service.GetTask(r.Context(), userID, chi.URLParam(r, "taskID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

// Create はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	t, err := h.service.CreateTask(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTaskResponse(t))
}

// Update はタスクを部分更新する。
// PATCH /api/tasks/{taskID}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	t, err := h.service.UpdateTask(r.Context(), userID, chi.URLParam(r, "taskID"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

// completeRequest は完了状態変更のリクエストボディ。
type completeRequest struct {
	Completed bool `json:"completed"`
}

// Complete はタスクの完了状態を切り替える。
// PUT /api/tasks/{taskID}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	t, err := h.service.CompleteTask(r.Context(), userID, chi.URLParam(r, "taskID"), req.Completed)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

// Delete はタスクを削除する。削除は墓標として記録され次回同期で伝播する。
// DELETE /api/tasks/{taskID}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), userID, chi.URLParam(r, "taskID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
