// Package model はドメインモデルを定義する。
package model

import "time"

// Task は単独のタスクを表す。
// IDは作成時に採番され、以後変更されない。
// UpdatedAtは同期時のlast-writer-wins判定の基準となる（ミリ秒精度）。
type Task struct {
	ID        string
	UserID    string
	Title     string
	Notes     string // サニタイズ済みリッチテキスト
	Completed bool
	DueAt     *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TodoList はTodoItemをまとめるリストを表す。
type TodoList struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TodoItem はリストに属する項目を表す。
// ListIDは同一ユーザーの既存TodoListを参照しなければならない。
// 参照が解決できない項目は孤立項目として同期対象から除外される。
type TodoItem struct {
	ID        string
	ListID    string
	UserID    string
	Text      string
	Completed bool
	DueAt     *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
