package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tasksync/internal/model"
	"github.com/hitoshi/tasksync/internal/repository"
)

// ListService はToDoリストと所属項目のサービス層。
// リスト削除は所属項目の削除マーカーも記録する（リモート側の項目復活を防ぐ）。
type ListService struct {
	listRepo      repository.TodoListRepository
	itemRepo      repository.TodoItemRepository
	tombstoneRepo repository.TombstoneRepository
}

// NewListService はListServiceの新しいインスタンスを生成する。
func NewListService(
	listRepo repository.TodoListRepository,
	itemRepo repository.TodoItemRepository,
	tombstoneRepo repository.TombstoneRepository,
) *ListService {
	return &ListService{
		listRepo:      listRepo,
		itemRepo:      itemRepo,
		tombstoneRepo: tombstoneRepo,
	}
}

// ItemInput は項目作成・更新の入力。更新時はnilのフィールドは変更されない。
type ItemInput struct {
	Text      *string
	Completed *bool
	DueAt     *time.Time
	ClearDue  bool
}

// ListLists はユーザーの全リストをupdated_at降順で返す。
func (s *ListService) ListLists(ctx context.Context, userID string) ([]*model.TodoList, error) {
	lists, err := s.listRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	return lists, nil
}

// GetList は指定IDのリストを返す。他ユーザーのリストは見つからない扱いとする。
func (s *ListService) GetList(ctx context.Context, userID, listID string) (*model.TodoList, error) {
	list, err := s.listRepo.FindByID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if list == nil || list.UserID != userID {
		return nil, model.NewListNotFoundError(listID)
	}
	return list, nil
}

// CreateList は新しいリストを作成する。
func (s *ListService) CreateList(ctx context.Context, userID, name string) (*model.TodoList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("リスト名は必須です")
	}

	now := time.Now().Truncate(time.Millisecond)
	list := &model.TodoList{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.listRepo.Create(ctx, list); err != nil {
		return nil, fmt.Errorf("リストの作成に失敗しました: %w", err)
	}
	return list, nil
}

// RenameList はリスト名を変更し、updated_atを現在時刻へ進める。
func (s *ListService) RenameList(ctx context.Context, userID, listID, name string) (*model.TodoList, error) {
	list, err := s.GetList(ctx, userID, listID)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("リスト名は必須です")
	}
	list.Name = name
	list.UpdatedAt = time.Now().Truncate(time.Millisecond)

	if err := s.listRepo.Update(ctx, list); err != nil {
		return nil, fmt.Errorf("リストの更新に失敗しました: %w", err)
	}
	return list, nil
}

// DeleteList はリストと所属項目を削除し、それぞれの削除マーカーを記録する。
// 項目の行はCASCADE削除されるが、マーカーがないとリモートの項目が次回pullで復活する。
func (s *ListService) DeleteList(ctx context.Context, userID, listID string) error {
	list, err := s.GetList(ctx, userID, listID)
	if err != nil {
		return err
	}

	items, err := s.itemRepo.ListByListID(ctx, list.ID)
	if err != nil {
		return fmt.Errorf("項目一覧の取得に失敗しました: %w", err)
	}

	now := time.Now().Truncate(time.Millisecond)
	for _, item := range items {
		if err := s.tombstoneRepo.Record(ctx, &model.Tombstone{
			EntityType: model.EntityTypeTodoItem,
			EntityID:   item.ID,
			UserID:     userID,
			DeletedAt:  now,
		}); err != nil {
			return fmt.Errorf("項目の削除マーカーの記録に失敗しました: %w", err)
		}
	}

	if err := s.listRepo.Delete(ctx, list.ID); err != nil {
		return fmt.Errorf("リストの削除に失敗しました: %w", err)
	}
	if err := s.tombstoneRepo.Record(ctx, &model.Tombstone{
		EntityType: model.EntityTypeTodoList,
		EntityID:   list.ID,
		UserID:     userID,
		DeletedAt:  now,
	}); err != nil {
		return fmt.Errorf("リストの削除マーカーの記録に失敗しました: %w", err)
	}
	return nil
}

// ListItems はリスト内の全項目をcreated_at昇順で返す。
func (s *ListService) ListItems(ctx context.Context, userID, listID string) ([]*model.TodoItem, error) {
	if _, err := s.GetList(ctx, userID, listID); err != nil {
		return nil, err
	}
	items, err := s.itemRepo.ListByListID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("項目一覧の取得に失敗しました: %w", err)
	}
	return items, nil
}

// AddItem はリストに項目を追加する。
func (s *ListService) AddItem(ctx context.Context, userID, listID string, input ItemInput) (*model.TodoItem, error) {
	if _, err := s.GetList(ctx, userID, listID); err != nil {
		return nil, err
	}

	text := ""
	if input.Text != nil {
		text = strings.TrimSpace(*input.Text)
	}
	if text == "" {
		return nil, model.NewValidationError("項目テキストは必須です")
	}

	now := time.Now().Truncate(time.Millisecond)
	item := &model.TodoItem{
		ID:        uuid.New().String(),
		ListID:    listID,
		UserID:    userID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Completed != nil {
		item.Completed = *input.Completed
	}
	if input.DueAt != nil {
		due := input.DueAt.Truncate(time.Millisecond)
		item.DueAt = &due
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("項目の作成に失敗しました: %w", err)
	}
	return item, nil
}

// UpdateItem は既存項目を部分更新し、updated_atを現在時刻へ進める。
func (s *ListService) UpdateItem(ctx context.Context, userID, itemID string, input ItemInput) (*model.TodoItem, error) {
	item, err := s.getOwnedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if input.Text != nil {
		text := strings.TrimSpace(*input.Text)
		if text == "" {
			return nil, model.NewValidationError("項目テキストは必須です")
		}
		item.Text = text
	}
	if input.Completed != nil {
		item.Completed = *input.Completed
	}
	if input.ClearDue {
		item.DueAt = nil
	} else if input.DueAt != nil {
		due := input.DueAt.Truncate(time.Millisecond)
		item.DueAt = &due
	}
	item.UpdatedAt = time.Now().Truncate(time.Millisecond)

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("項目の更新に失敗しました: %w", err)
	}
	return item, nil
}

// CompleteItem は項目の完了状態を設定する。
func (s *ListService) CompleteItem(ctx context.Context, userID, itemID string, completed bool) (*model.TodoItem, error) {
	return s.UpdateItem(ctx, userID, itemID, ItemInput{Completed: &completed})
}

// DeleteItem は項目を削除し、削除マーカーを記録する。
func (s *ListService) DeleteItem(ctx context.Context, userID, itemID string) error {
	item, err := s.getOwnedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}

	if err := s.itemRepo.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("項目の削除に失敗しました: %w", err)
	}
	if err := s.tombstoneRepo.Record(ctx, &model.Tombstone{
		EntityType: model.EntityTypeTodoItem,
		EntityID:   item.ID,
		UserID:     userID,
		DeletedAt:  time.Now().Truncate(time.Millisecond),
	}); err != nil {
		return fmt.Errorf("削除マーカーの記録に失敗しました: %w", err)
	}
	return nil
}

func (s *ListService) getOwnedItem(ctx context.Context, userID, itemID string) (*model.TodoItem, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("項目の取得に失敗しました: %w", err)
	}
	if item == nil || item.UserID != userID {
		return nil, model.NewItemNotFoundError(itemID)
	}
	return item, nil
}
