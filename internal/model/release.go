package model

import "time"

// アルバム種別。上流APIのalbum_group/album_typeに対応する。
const (
	AlbumTypeAlbum     = "album"
	AlbumTypeSingle    = "single"
	AlbumTypeAppearsOn = "appears_on"
)

// Artist はフォロー中のアーティストを表す。
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// ReleaseRecord は週内に発見された1件のリリースを正規化した記録。
type ReleaseRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ArtistName  string `json:"artistName"`
	ArtistID    string `json:"artistId"`
	ImageURL    string `json:"imageUrl"`
	AlbumType   string `json:"albumType"`
	ReleaseDate string `json:"releaseDate"`
	TotalTracks int    `json:"totalTracks"`
	URI         string `json:"uri"`
}

// ScanStats はスキャン結果の集計値。
type ScanStats struct {
	TotalTracks    int `json:"totalTracks"`
	AlbumCount     int `json:"albumCount"`
	SingleCount    int `json:"singleCount"`
	AppearsOnCount int `json:"appearsOnCount"`
}

// ScanResult は1ユーザー分のスキャン完了結果。
// 重複除去済みのトラックURI一覧とリリース記録、集計値を保持する。
type ScanResult struct {
	Email     string
	WeekKey   string
	TrackURIs []string
	Releases  []ReleaseRecord
	Stats     ScanStats
}

// CountStats はリリース記録からアルバム種別ごとの集計値を算出する。
func CountStats(releases []ReleaseRecord, totalTracks int) ScanStats {
	stats := ScanStats{TotalTracks: totalTracks}
	for _, r := range releases {
		switch r.AlbumType {
		case AlbumTypeAlbum:
			stats.AlbumCount++
		case AlbumTypeSingle:
			stats.SingleCount++
		case AlbumTypeAppearsOn:
			stats.AppearsOnCount++
		}
	}
	return stats
}

// RadarWeek は1ユーザー・1週分のリリースレーダー履歴。
type RadarWeek struct {
	Email      string
	WeekKey    string
	Releases   []ReleaseRecord
	Stats      ScanStats
	PlaylistID string
	Finalized  bool
	CreatedAt  time.Time
}
