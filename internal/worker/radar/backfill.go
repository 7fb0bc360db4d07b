package radar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/repository"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// defaultBackfillWeeks は1回のバックフィルで遡る週数。
const defaultBackfillWeeks = 4

// Backfill は過去週の履歴を補完するバッチジョブ。
// 現在進行中の週はスキップし、記録済みの週は再スキャンしない。
// 補完した週はfinalized=trueで保存する。
type Backfill struct {
	users     repository.UserRepository
	radar     repository.RadarRepository
	engine    ScanEngine
	sanitizer sanitizeFunc
	policy    week.Policy
	weeksBack int
	logger    *slog.Logger

	// now はテスト時に現在時刻を固定するためのフック。
	now func() time.Time
}

// sanitizeFunc はリリース記録のテキストサニタイズ関数。nil可。
type sanitizeFunc func(string) string

// NewBackfill はBackfillの新しいインスタンスを生成する。
// weeksBackが0以下の場合はデフォルト値4を使用する。
func NewBackfill(
	users repository.UserRepository,
	radar repository.RadarRepository,
	engine ScanEngine,
	sanitize func(string) string,
	policy week.Policy,
	weeksBack int,
	logger *slog.Logger,
) *Backfill {
	if weeksBack <= 0 {
		weeksBack = defaultBackfillWeeks
	}
	return &Backfill{
		users:     users,
		radar:     radar,
		engine:    engine,
		sanitizer: sanitize,
		policy:    policy,
		weeksBack: weeksBack,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce は全対象ユーザーの過去週履歴を1回補完する。
// ユーザーごとに直近weeksBack週を走査し、未記録の週のみスキャンする。
func (b *Backfill) RunOnce(ctx context.Context) error {
	users, err := b.users.ListActiveReleaseRadar(ctx)
	if err != nil {
		return fmt.Errorf("対象ユーザーの取得に失敗しました: %w", err)
	}

	currentStart := b.policy.CurrentWindow(b.now()).Start

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.backfillUser(ctx, user, currentStart); err != nil {
			b.logger.Error("ユーザーのバックフィルに失敗しました",
				slog.String("email", user.Email),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// backfillUser は1ユーザーの過去週履歴を補完する。
// 現在の週（進行中で未確定）は対象外とする。
func (b *Backfill) backfillUser(ctx context.Context, user *model.User, currentStart time.Time) error {
	keys, err := b.radar.ListWeekKeys(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("記録済み週キーの取得に失敗しました: %w", err)
	}
	existing := make(map[string]bool, len(keys))
	for _, key := range keys {
		existing[key] = true
	}

	filled := 0
	for i := 1; i <= b.weeksBack; i++ {
		start := currentStart.AddDate(0, 0, -7*i)
		window := week.Window{Start: start, End: start.AddDate(0, 0, 7)}
		weekKey := b.policy.KeyFor(start)

		if existing[weekKey] {
			continue
		}

		result, err := b.engine.ScanUser(ctx, user, window)
		if err != nil {
			return fmt.Errorf("過去週のスキャンに失敗しました（%s）: %w", weekKey, err)
		}

		if b.sanitizer != nil {
			for j := range result.Releases {
				result.Releases[j].Name = b.sanitizer(result.Releases[j].Name)
				result.Releases[j].ArtistName = b.sanitizer(result.Releases[j].ArtistName)
			}
		}

		record := &model.RadarWeek{
			Email:     user.Email,
			WeekKey:   weekKey,
			Releases:  result.Releases,
			Stats:     result.Stats,
			Finalized: true,
		}
		if err := b.radar.UpsertWeek(ctx, record); err != nil {
			return fmt.Errorf("週次記録の保存に失敗しました（%s）: %w", weekKey, err)
		}
		filled++
	}

	if filled > 0 {
		b.logger.Info("過去週の履歴を補完しました",
			slog.String("email", user.Email),
			slog.Int("week_count", filled),
		)
	}

	return nil
}
