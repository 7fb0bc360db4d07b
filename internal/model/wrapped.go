package model

import "time"

// 聴取期間。上流APIのtime_rangeパラメータに対応する。
const (
	TermShort  = "short_term"
	TermMedium = "medium_term"
	TermLong   = "long_term"
)

// Terms は集計対象の全期間。
var Terms = []string{TermShort, TermMedium, TermLong}

// TopTrack は聴取上位のトラックを表す。
type TopTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ArtistName string `json:"artistName"`
	URI        string `json:"uri"`
}

// TopArtist は聴取上位のアーティストを表す。
type TopArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

// TermSummary は1期間分の聴取集計。
type TermSummary struct {
	Tracks  []TopTrack     `json:"tracks"`
	Artists []TopArtist    `json:"artists"`
	Genres  map[string]int `json:"genres"`
}

// WrappedMonth は1ユーザー・1ヶ月分の聴取傾向履歴。
// 期間（short/medium/long）ごとの集計を保持する。
type WrappedMonth struct {
	Email      string
	MonthKey   string // "YYYY-MM"
	Terms      map[string]TermSummary
	PlaylistID string
	CreatedAt  time.Time
}
