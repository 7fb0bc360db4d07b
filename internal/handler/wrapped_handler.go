package handler

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/repository"
)

// monthKeyPattern は月キー "YYYY-MM" の形式。
var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// WrappedHandler は月次聴取サマリーのHTTPハンドラー。
type WrappedHandler struct {
	users   repository.UserRepository
	wrapped repository.WrappedRepository
}

// NewWrappedHandler はWrappedHandlerを生成する。
func NewWrappedHandler(users repository.UserRepository, wrapped repository.WrappedRepository) *WrappedHandler {
	return &WrappedHandler{users: users, wrapped: wrapped}
}

// wrappedMonthResponse は月次サマリーのレスポンス。
type wrappedMonthResponse struct {
	MonthKey   string                       `json:"monthKey"`
	Terms      map[string]model.TermSummary `json:"terms"`
	PlaylistID string                       `json:"playlistId,omitempty"`
	CreatedAt  time.Time                    `json:"createdAt"`
}

// wrappedHistoryResponse は月次サマリー一覧のレスポンス。
type wrappedHistoryResponse struct {
	Email  string                 `json:"email"`
	Months []wrappedMonthResponse `json:"months"`
}

// toWrappedMonthResponse はmodel.WrappedMonthをレスポンス型に変換する。
func toWrappedMonthResponse(m *model.WrappedMonth) wrappedMonthResponse {
	terms := m.Terms
	if terms == nil {
		terms = map[string]model.TermSummary{}
	}
	return wrappedMonthResponse{
		MonthKey:   m.MonthKey,
		Terms:      terms,
		PlaylistID: m.PlaylistID,
		CreatedAt:  m.CreatedAt,
	}
}

// GetHistory はユーザーの月次サマリー一覧を取得する。
// GET /api/wrapped/history?email=xxx
func (h *WrappedHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
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

	months, err := h.wrapped.ListMonths(r.Context(), email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := wrappedHistoryResponse{Email: email, Months: make([]wrappedMonthResponse, len(months))}
	for i, m := range months {
		resp.Months[i] = toWrappedMonthResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMonth は指定月のサマリーを取得する。
// GET /api/wrapped/month/{monthKey}?email=xxx
func (h *WrappedHandler) GetMonth(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	monthKey := chi.URLParam(r, "monthKey")
	if !monthKeyPattern.MatchString(monthKey) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("月キーはYYYY-MM形式で指定してください"))
		return
	}

	record, err := h.wrapped.FindMonth(r.Context(), email, monthKey)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if record == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewMonthNotFoundError(monthKey))
		return
	}

	writeJSON(w, http.StatusOK, toWrappedMonthResponse(record))
}
