// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail は指定メールアドレスのユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ListActiveReleaseRadar はリリースレーダーが有効な全ユーザーを返す。
	ListActiveReleaseRadar(ctx context.Context) ([]*model.User, error)

	// ListActiveWrapped は月次サマリーが有効な全ユーザーを返す。
	ListActiveWrapped(ctx context.Context) ([]*model.User, error)

	// Upsert はユーザーをメールアドレスをキーに冪等に作成・更新する。
	Upsert(ctx context.Context, user *model.User) error

	// UpdateReleaseRadarPlaylistID はユーザーのリリースレーダー用プレイリストIDを更新する。
	UpdateReleaseRadarPlaylistID(ctx context.Context, email, playlistID string) error
}

// RadarRepository は週次リリース記録の永続化インターフェース。
type RadarRepository interface {
	// UpsertWeek は週次記録を（メールアドレス, 週キー）をキーに冪等にUPSERTする。
	UpsertWeek(ctx context.Context, week *model.RadarWeek) error

	// FindWeek は指定ユーザー・週キーの記録を取得する。見つからない場合はnilを返す。
	FindWeek(ctx context.Context, email, weekKey string) (*model.RadarWeek, error)

	// ListWeeks は指定ユーザーの全週次記録を週キー降順で返す。
	ListWeeks(ctx context.Context, email string) ([]*model.RadarWeek, error)

	// ListWeeksBetween は指定ユーザーの週次記録を週キー範囲（両端含む）で週キー降順で返す。
	ListWeeksBetween(ctx context.Context, email, fromKey, toKey string) ([]*model.RadarWeek, error)

	// ListWeekKeys は指定ユーザーの記録済み週キーの一覧を返す。
	// バックフィル時の既存判定に使用する。
	ListWeekKeys(ctx context.Context, email string) ([]string, error)
}

// WrappedRepository は月次サマリーの永続化インターフェース。
type WrappedRepository interface {
	// UpsertMonth は月次サマリーを（メールアドレス, 月キー）をキーに冪等にUPSERTする。
	UpsertMonth(ctx context.Context, month *model.WrappedMonth) error

	// FindMonth は指定ユーザー・月キーのサマリーを取得する。見つからない場合はnilを返す。
	FindMonth(ctx context.Context, email, monthKey string) (*model.WrappedMonth, error)

	// ListMonths は指定ユーザーの全月次サマリーを月キー降順で返す。
	ListMonths(ctx context.Context, email string) ([]*model.WrappedMonth, error)
}