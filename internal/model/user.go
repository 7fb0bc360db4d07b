// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// リフレッシュトークンを保持し、各機能の有効フラグで処理対象を制御する。
type User struct {
	ID                     string
	Email                  string
	RefreshToken           string
	Active                 bool
	ActiveReleaseRadar     bool
	ActiveWrapped          bool
	ReleaseRadarPlaylistID string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
