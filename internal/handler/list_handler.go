package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/task"
)

// ListServiceInterface はリストハンドラーが必要とするサービスインターフェース。
type ListServiceInterface interface {
	ListLists(ctx context.Context, userID string) ([]*model.TodoList, error)
	GetList(ctx context.Context, userID, listID string) (*model.TodoList, error)
	CreateList(ctx context.Context, userID, name string) (*model.TodoList, error)
	RenameList(ctx context.Context, userID, listID, name string) (*model.TodoList, error)
	DeleteList(ctx context.Context, userID, listID string) error
	ListItems(ctx context.Context, userID, listID string) ([]*model.TodoItem, error)
	AddItem(ctx context.Context, userID, listID string, input task.ItemInput) (*model.TodoItem, error)
	UpdateItem(ctx context.Context, userID, itemID string, input task.ItemInput) (*model.TodoItem, error)
	CompleteItem(ctx context.Context, userID, itemID string, completed bool) (*model.TodoItem, error)
	DeleteItem(ctx context.Context, userID, itemID string) error
}

// ListHandler はTODOリストと配下の項目のHTTPハンドラー。
type ListHandler struct {
	service ListServiceInterface
}

// NewListHandler はListHandlerを生成する。
func NewListHandler(service ListServiceInterface) *ListHandler {
	return &ListHandler{service: service}
}

// listRequest はリスト作成・リネームのリクエストボディ。
type listRequest struct {
	Name string `json:"name"`
}

// listResponse はリストのレスポンス表現。
type listResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newListResponse(l *model.TodoList) listResponse {
	return listResponse{
		ID:        l.ID,
		Name:      l.Name,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

// itemRequest は項目作成・更新のリクエストボディ。
type itemRequest struct {
	Text      *string    `json:"text"`
	Completed *bool      `json:"completed"`
	DueAt     *time.Time `json:"due_at"`
	ClearDue  bool       `json:"clear_due"`
}

func (req *itemRequest) toInput() task.ItemInput {
	return task.ItemInput{
		Text:      req.Text,
		Completed: req.Completed,
		DueAt:     req.DueAt,
		ClearDue:  req.ClearDue,
	}
}

// itemResponse は項目のレスポンス表現。
type itemResponse struct {
	ID        string     `json:"id"`
	ListID    string     `json:"list_id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newItemResponse(i *model.TodoItem) itemResponse {
	return itemResponse{
		ID:        i.ID,
		ListID:    i.ListID,
		Text:      i.Text,
		Completed: i.Completed,
		DueAt:     i.DueAt,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// List はユーザーの全リストを返す。
// GET /api/lists
func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	lists, err := h.service.ListLists(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]listResponse, 0, len(lists))
	for _, l := range lists {
		resp = append(resp, newListResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lists": resp})
}

// Get は単一リストを返す。
// GET /api/lists/{listID}
func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	l, err := h.service.GetList(r.Context(), userID, chi.URLParam(r, "listID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(l))
}

// Create はリストを作成する。
// POST /api/lists
func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		handleServiceError(w, model.NewValidationError("nameは必須です"))
		return
	}

	l, err := h.service.CreateList(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newListResponse(l))
}

// Rename はリスト名を変更する。
// PATCH /api/lists/{listID}
func (h *ListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		handleServiceError(w, model.NewValidationError("nameは必須です"))
		return
	}

	l, err := h.service.RenameList(r.Context(), userID, chi.URLParam(r, "listID"), req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(l))
}

// Delete はリストと配下の全項目を削除する。
// DELETE /api/lists/{listID}
func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteList(r.Context(), userID, chi.URLParam(r, "listID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListItems はリスト配下の全項目を返す。
// GET /api/lists/{listID}/items
func (h *ListHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListItems(r.Context(), userID, chi.URLParam(r, "listID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]itemResponse, 0, len(items))
	for _, i := range items {
		resp = append(resp, newItemResponse(i))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": resp})
}

// AddItem はリストに項目を追加する。
// POST /api/lists/{listID}/items
func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	item, err := h.service.AddItem(r.Context(), userID, chi.URLParam(r, "listID"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newItemResponse(item))
}

// UpdateItem は項目を部分更新する。
// PATCH /api/items/{itemID}
func (h *ListHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	item, err := h.service.UpdateItem(r.Context(), userID, chi.URLParam(r, "itemID"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// CompleteItem は項目の完了状態を切り替える。
// PUT /api/items/{itemID}/complete
func (h *ListHandler) CompleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	item, err := h.service.CompleteItem(r.Context(), userID, chi.URLParam(r, "itemID"), req.Completed)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newItemResponse(item))
}

// DeleteItem は項目を削除する。
// DELETE /api/items/{itemID}
func (h *ListHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), userID, chi.URLParam(r, "itemID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
