package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/repository"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// RadarRunner はリリースレーダーのバッチ実行インターフェース。
// テスト時にモックに差し替え可能にする。
type RadarRunner interface {
	// RunOnce は全対象ユーザーのスキャンを1回実行する。
	RunOnce(ctx context.Context) error
}

// RadarHandler はリリースレーダー履歴のHTTPハンドラー。
type RadarHandler struct {
	users  repository.UserRepository
	radar  repository.RadarRepository
	runner RadarRunner
	policy week.Policy
	logger *slog.Logger

	// now はテスト時に現在時刻を固定するためのフック。
	now func() time.Time
}

// NewRadarHandler はRadarHandlerを生成する。
func NewRadarHandler(
	users repository.UserRepository,
	radar repository.RadarRepository,
	runner RadarRunner,
	policy week.Policy,
	logger *slog.Logger,
) *RadarHandler {
	return &RadarHandler{
		users:  users,
		radar:  radar,
		runner: runner,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// --- レスポンス型 ---

// radarWeekResponse は週次リリース記録のレスポンス。
type radarWeekResponse struct {
	WeekKey    string                `json:"weekKey"`
	Releases   []model.ReleaseRecord `json:"releases"`
	Stats      model.ScanStats       `json:"stats"`
	PlaylistID string                `json:"playlistId,omitempty"`
	Finalized  bool                  `json:"finalized"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// radarHistoryResponse は履歴一覧のレスポンス。
type radarHistoryResponse struct {
	Email string              `json:"email"`
	Weeks []radarWeekResponse `json:"weeks"`
}

// radarCheckResponse は今週分の記録有無のレスポンス。
type radarCheckResponse struct {
	Email     string `json:"email"`
	WeekKey   string `json:"weekKey"`
	Exists    bool   `json:"exists"`
	Finalized bool   `json:"finalized"`
}

// toRadarWeekResponse はmodel.RadarWeekをレスポンス型に変換する。
func toRadarWeekResponse(w *model.RadarWeek) radarWeekResponse {
	releases := w.Releases
	if releases == nil {
		releases = []model.ReleaseRecord{}
	}
	return radarWeekResponse{
		WeekKey:    w.WeekKey,
		Releases:   releases,
		Stats:      w.Stats,
		PlaylistID: w.PlaylistID,
		Finalized:  w.Finalized,
		CreatedAt:  w.CreatedAt,
	}
}

// GetHistory はユーザーの週次履歴一覧を取得する。
// from/toの両方を指定すると週キー範囲（両端含む）で絞り込む。
// GET /api/release-radar/history?email=xxx[&from=2025-30&to=2025-34]
func (h *RadarHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	user, err := h.users.FindByEmail(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(email))
		return
	}

	fromKey := r.URL.Query().Get("from")
	toKey := r.URL.Query().Get("to")

	var weeks []*model.RadarWeek
	if fromKey != "" || toKey != "" {
		if !week.ValidKey(fromKey) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidWeekKeyError(fromKey))
			return
		}
		if !week.ValidKey(toKey) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidWeekKeyError(toKey))
			return
		}
		weeks, err = h.radar.ListWeeksBetween(r.Context(), email, fromKey, toKey)
	} else {
		weeks, err = h.radar.ListWeeks(r.Context(), email)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := radarHistoryResponse{Email: email, Weeks: make([]radarWeekResponse, len(weeks))}
	for i, wk := range weeks {
		resp.Weeks[i] = toRadarWeekResponse(wk)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetWeek は指定週の記録を取得する。
// GET /api/release-radar/week/{weekKey}?email=xxx
func (h *RadarHandler) GetWeek(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	weekKey := chi.URLParam(r, "weekKey")
	if !week.ValidKey(weekKey) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidWeekKeyError(weekKey))
		return
	}

	record, err := h.radar.FindWeek(r.Context(), email, weekKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if record == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWeekNotFoundError(weekKey))
		return
	}

	writeJSON(w, http.StatusOK, toRadarWeekResponse(record))
}

// CheckWeek は今週分の記録の有無を確認する。
// GET /api/release-radar/check?email=xxx
func (h *RadarHandler) CheckWeek(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	weekKey := h.policy.KeyFor(h.now())

	record, err := h.radar.FindWeek(r.Context(), email, weekKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := radarCheckResponse{Email: email, WeekKey: weekKey}
	if record != nil {
		resp.Exists = true
		resp.Finalized = record.Finalized
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerRun はリリースレーダーのバッチ実行を開始する。
// 実行はバックグラウンドで行い、即座に202を返す。
// POST /api/ops/release-radar/run
func (h *RadarHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	go func() {
		// リクエストのキャンセルとは独立に完走させる
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if err := h.runner.RunOnce(ctx); err != nil {
			h.logger.Error("手動実行のバッチスキャンに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()

	h.logger.Info("リリースレーダーの手動実行を受け付けました")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
