// Package week は週キーの算出とリリース日の週内判定を提供する。
// 週の開始曜日は設定可能で、純粋なカレンダー計算のみを行う。
package week

import (
	"fmt"
	"regexp"
	"time"
)

// Window は1週間の半開区間 [Start, End) を表す。
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains は時刻がウィンドウ内（Start以上End未満）かを返す。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Policy は週の開始曜日を定義する。
// 現行デプロイは土曜開始。過去には日曜開始の運用も存在した。
type Policy struct {
	StartDay time.Weekday
}

// DefaultPolicy は土曜開始のPolicyを返す。
func DefaultPolicy() Policy {
	return Policy{StartDay: time.Saturday}
}

// weekKeyPattern は週キー "{ISO年}-{ISO週番号:2桁}" の形式。
var weekKeyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// KeyFor は指定時刻が属する週の週キーを返す。
// 週キーは週の開始日のISO年とISO週番号から "{年}-{週:02d}" 形式で構成する。
func (p Policy) KeyFor(t time.Time) string {
	start := p.startOfWeek(t)
	year, wk := start.ISOWeek()
	return fmt.Sprintf("%d-%02d", year, wk)
}

// WindowFor は週キーに対応する1週間のウィンドウを返す。
// 週キーの形式が不正な場合、または対応する週が存在しない場合はエラーを返す。
func (p Policy) WindowFor(key string) (Window, error) {
	m := weekKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return Window{}, fmt.Errorf("無効な週キーです: %s", key)
	}

	var year, wk int
	fmt.Sscanf(key, "%d-%d", &year, &wk)
	if wk < 1 || wk > 53 {
		return Window{}, fmt.Errorf("無効な週番号です: %s", key)
	}

	// ISO週のMonday: 1月4日は常に第1週に属する
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -isoWeekdayOffset(jan4)+(wk-1)*7)

	// そのISO週に属する開始曜日の候補は前後1週間以内に必ず1つ存在する
	offset := (int(p.StartDay) - int(time.Monday) + 7) % 7
	for _, cand := range []time.Time{
		monday.AddDate(0, 0, offset-7),
		monday.AddDate(0, 0, offset),
	} {
		y, w := cand.ISOWeek()
		if y == year && w == wk {
			return Window{Start: cand, End: cand.AddDate(0, 0, 7)}, nil
		}
	}

	return Window{}, fmt.Errorf("週キーに対応する週が存在しません: %s", key)
}

// CurrentWindow は指定時刻が属する週のウィンドウを返す。
func (p Policy) CurrentWindow(t time.Time) Window {
	start := p.startOfWeek(t)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// startOfWeek は指定時刻以前で最も近い開始曜日の0時（UTC）を返す。
func (p Policy) startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	diff := (int(day.Weekday()) - int(p.StartDay) + 7) % 7
	return day.AddDate(0, 0, -diff)
}

// isoWeekdayOffset は月曜を0とした曜日オフセットを返す。
func isoWeekdayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// RollingWindow は指定時刻で終わる直近7日間のウィンドウを返す。
// 週キーを持たないローリング判定用。
func RollingWindow(now time.Time) Window {
	now = now.UTC()
	return Window{Start: now.AddDate(0, 0, -7), End: now}
}

// ParseReleaseDate はリリース日文字列を時刻に変換する。
// "YYYY-MM-DD" は当日、"YYYY-MM" は月初日として近似する。
// "YYYY"（年のみ）および不正な形式はok=falseを返す。
func ParseReleaseDate(s string) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	// 月精度は月初日で近似する
	if t, err := time.Parse("2006-01", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// InWindow はリリース日文字列がウィンドウ内かを判定する。
// 年のみの日付および不正な形式は常にfalseを返し、エラーにはしない。
func InWindow(releaseDate string, w Window) bool {
	t, ok := ParseReleaseDate(releaseDate)
	if !ok {
		return false
	}
	return w.Contains(t)
}

// ValidKey は週キーの形式が正しいかを返す。
func ValidKey(key string) bool {
	return weekKeyPattern.MatchString(key)
}
