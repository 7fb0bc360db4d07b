package radar

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/domgiordano/xomify-backend/internal/model"
	"github.com/domgiordano/xomify-backend/internal/scan"
	"github.com/domgiordano/xomify-backend/internal/security"
	"github.com/domgiordano/xomify-backend/internal/week"
)

// newTestLogger はテスト用のJSONロガーを生成する。
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// testNow はテストの固定現在時刻（2025-08-27水曜、週キー2025-34の週内）。
func testNow() time.Time {
	return time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)
}

// --- テスト用フェイク ---

// fakeUserRepo はUserRepositoryのテスト用フェイク。
type fakeUserRepo struct {
	mu          sync.Mutex
	users       map[string]*model.User
	playlistIDs map[string]string
	listErr     error
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[email], nil
}

func (f *fakeUserRepo) ListActiveReleaseRadar(ctx context.Context) ([]*model.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []*model.User
	for _, u := range f.users {
		if u.Active && u.ActiveReleaseRadar {
			users = append(users, u)
		}
	}
	return users, nil
}

func (f *fakeUserRepo) ListActiveWrapped(ctx context.Context) ([]*model.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserRepo) UpdateReleaseRadarPlaylistID(ctx context.Context, email, playlistID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playlistIDs == nil {
		f.playlistIDs = make(map[string]string)
	}
	f.playlistIDs[email] = playlistID
	if u, ok := f.users[email]; ok {
		u.ReleaseRadarPlaylistID = playlistID
	}
	return nil
}

// fakeRadarRepo はRadarRepositoryのテスト用フェイク。
type fakeRadarRepo struct {
	mu    sync.Mutex
	weeks map[string]*model.RadarWeek // key: email + "/" + weekKey
}

func radarKey(email, weekKey string) string { return email + "/" + weekKey }

func (f *fakeRadarRepo) UpsertWeek(ctx context.Context, wk *model.RadarWeek) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.weeks == nil {
		f.weeks = make(map[string]*model.RadarWeek)
	}
	f.weeks[radarKey(wk.Email, wk.WeekKey)] = wk
	return nil
}

func (f *fakeRadarRepo) FindWeek(ctx context.Context, email, weekKey string) (*model.RadarWeek, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weeks[radarKey(email, weekKey)], nil
}

func (f *fakeRadarRepo) ListWeeks(ctx context.Context, email string) ([]*model.RadarWeek, error) {
	return nil, nil
}

func (f *fakeRadarRepo) ListWeeksBetween(ctx context.Context, email, fromKey, toKey string) ([]*model.RadarWeek, error) {
	return nil, nil
}

func (f *fakeRadarRepo) ListWeekKeys(ctx context.Context, email string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, wk := range f.weeks {
		if wk.Email == email {
			keys = append(keys, wk.WeekKey)
		}
	}
	return keys, nil
}

// fakeEngine はScanEngineのテスト用フェイク。
// スキャン対象のユーザーとウィンドウを記録する。
type fakeEngine struct {
	mu       sync.Mutex
	results  map[string]*model.ScanResult // key: email
	errs     map[string]error             // key: email
	scanned  []string
	windows  []week.Window
	policy   week.Policy
}

func (f *fakeEngine) ScanUser(ctx context.Context, user *model.User, w week.Window) (*model.ScanResult, error) {
	f.mu.Lock()
	f.scanned = append(f.scanned, user.Email)
	f.windows = append(f.windows, w)
	f.mu.Unlock()

	if err := f.errs[user.Email]; err != nil {
		return nil, err
	}
	if r, ok := f.results[user.Email]; ok {
		// ウィンドウに応じた週キーを反映して返す
		copied := *r
		copied.WeekKey = f.policy.KeyFor(w.Start)
		return &copied, nil
	}
	return &model.ScanResult{Email: user.Email, WeekKey: f.policy.KeyFor(w.Start)}, nil
}

func (f *fakeEngine) ScanBatch(ctx context.Context, users []*model.User, w week.Window) ([]*model.ScanResult, []scan.UserFailure) {
	var results []*model.ScanResult
	var failures []scan.UserFailure
	for _, user := range users {
		r, err := f.ScanUser(ctx, user, w)
		if err != nil {
			failures = append(failures, scan.UserFailure{User: user, Err: err})
			continue
		}
		results = append(results, r)
	}
	return results, failures
}

// fakePlaylistManager はPlaylistManagerのテスト用フェイク。
type fakePlaylistManager struct {
	mu        sync.Mutex
	created   []string // Ensureで作成したプレイリスト名
	replaced  []string // ReplaceTracksされたプレイリストID
	lastURIs  []string
	ensureErr error
}

func (f *fakePlaylistManager) Ensure(ctx context.Context, name, description string, coverB64 []byte, trackURIs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	f.created = append(f.created, name)
	f.lastURIs = trackURIs
	return "pl-new", nil
}

func (f *fakePlaylistManager) ReplaceTracks(ctx context.Context, playlistID string, trackURIs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, playlistID)
	f.lastURIs = trackURIs
	return nil
}

// fakePlaylistFactory は全ユーザーに同一のマネージャを返すファクトリ。
type fakePlaylistFactory struct {
	mgr *fakePlaylistManager
}

func (f *fakePlaylistFactory) ManagerFor(user *model.User) PlaylistManager {
	return f.mgr
}

// fakeCoverProvider はCoverProviderのテスト用フェイク。
type fakeCoverProvider struct {
	cover    []byte
	buildErr error
	urls     []string
}

func (f *fakeCoverProvider) Build(ctx context.Context, imageURL string) ([]byte, error) {
	f.urls = append(f.urls, imageURL)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return f.cover, nil
}

// testUser はテスト用のユーザーを返す。
func testUser(email, playlistID string) *model.User {
	return &model.User{
		Email:                  email,
		RefreshToken:           "refresh",
		Active:                 true,
		ActiveReleaseRadar:     true,
		ReleaseRadarPlaylistID: playlistID,
	}
}

// testScanResult はテスト用のスキャン結果を返す。
func testScanResult(email string) *model.ScanResult {
	releases := []model.ReleaseRecord{
		{
			ID:         "al1",
			Name:       "New Album",
			ArtistName: "Some Artist",
			ImageURL:   "https://images.example.com/al1.jpg",
			AlbumType:  model.AlbumTypeAlbum,
		},
	}
	return &model.ScanResult{
		Email:     email,
		TrackURIs: []string{"spotify:track:t1", "spotify:track:t2"},
		Releases:  releases,
		Stats:     model.CountStats(releases, 2),
	}
}

// newTestJob はテスト用のJobを生成する。
func newTestJob(users *fakeUserRepo, radar *fakeRadarRepo, engine *fakeEngine, mgr *fakePlaylistManager, covers CoverProvider) *Job {
	var buf bytes.Buffer
	engine.policy = week.DefaultPolicy()
	j := NewJob(
		users,
		radar,
		engine,
		&fakePlaylistFactory{mgr: mgr},
		covers,
		security.NewContentSanitizer(),
		week.DefaultPolicy(),
		newTestLogger(&buf),
	)
	j.now = testNow
	return j
}

// TestJob_RunOnce_CreatesPlaylistForNewUser はプレイリスト未作成のユーザーに対して
// 新規作成とID記録が行われることを検証する。
func TestJob_RunOnce_CreatesPlaylistForNewUser(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"user@example.com": testUser("user@example.com", ""),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{results: map[string]*model.ScanResult{
		"user@example.com": testScanResult("user@example.com"),
	}}
	mgr := &fakePlaylistManager{}
	covers := &fakeCoverProvider{cover: []byte("base64-jpeg")}

	j := newTestJob(users, radar, engine, mgr, covers)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(mgr.created) != 1 {
		t.Fatalf("created = %d, want 1", len(mgr.created))
	}
	if mgr.created[0] != "Release Radar 2025-34" {
		t.Errorf("playlist name = %q, want %q", mgr.created[0], "Release Radar 2025-34")
	}
	if users.playlistIDs["user@example.com"] != "pl-new" {
		t.Errorf("recorded playlist ID = %q, want %q", users.playlistIDs["user@example.com"], "pl-new")
	}

	// カバー画像は先頭リリースのアートワークから生成される
	if len(covers.urls) != 1 || covers.urls[0] != "https://images.example.com/al1.jpg" {
		t.Errorf("cover source URLs = %v", covers.urls)
	}
}

// TestJob_RunOnce_ReplacesExistingPlaylist は作成済みプレイリストを持つユーザーに対して
// トラック置換が行われることを検証する。
func TestJob_RunOnce_ReplacesExistingPlaylist(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"user@example.com": testUser("user@example.com", "pl-existing"),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{results: map[string]*model.ScanResult{
		"user@example.com": testScanResult("user@example.com"),
	}}
	mgr := &fakePlaylistManager{}

	j := newTestJob(users, radar, engine, mgr, nil)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(mgr.created) != 0 {
		t.Errorf("created = %d, want 0", len(mgr.created))
	}
	if len(mgr.replaced) != 1 || mgr.replaced[0] != "pl-existing" {
		t.Errorf("replaced = %v, want [pl-existing]", mgr.replaced)
	}
	if len(mgr.lastURIs) != 2 {
		t.Errorf("len(uris) = %d, want 2", len(mgr.lastURIs))
	}
}

// TestJob_RunOnce_PersistsWeekRecord はスキャン結果が週次記録として保存されることを検証する。
func TestJob_RunOnce_PersistsWeekRecord(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"user@example.com": testUser("user@example.com", "pl-1"),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{results: map[string]*model.ScanResult{
		"user@example.com": testScanResult("user@example.com"),
	}}

	j := newTestJob(users, radar, engine, &fakePlaylistManager{}, nil)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	record, _ := radar.FindWeek(context.Background(), "user@example.com", "2025-34")
	if record == nil {
		t.Fatal("expected week record to be persisted")
	}
	if record.Finalized {
		t.Error("current week record should not be finalized")
	}
	if record.PlaylistID != "pl-1" {
		t.Errorf("playlistID = %q, want %q", record.PlaylistID, "pl-1")
	}
	if record.Stats.AlbumCount != 1 {
		t.Errorf("albumCount = %d, want 1", record.Stats.AlbumCount)
	}
}

// TestJob_RunOnce_SkipsFinalizedWeek は今週分が確定済みのユーザーが
// スキャン対象から除外されることを検証する。
func TestJob_RunOnce_SkipsFinalizedWeek(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"done@example.com":    testUser("done@example.com", "pl-1"),
		"pending@example.com": testUser("pending@example.com", "pl-2"),
	}}
	radar := &fakeRadarRepo{weeks: map[string]*model.RadarWeek{
		radarKey("done@example.com", "2025-34"): {
			Email:     "done@example.com",
			WeekKey:   "2025-34",
			Finalized: true,
		},
	}}
	engine := &fakeEngine{}

	j := newTestJob(users, radar, engine, &fakePlaylistManager{}, nil)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(engine.scanned) != 1 || engine.scanned[0] != "pending@example.com" {
		t.Errorf("scanned = %v, want [pending@example.com]", engine.scanned)
	}
}

// TestJob_RunOnce_UserFailureDoesNotStopOthers は1ユーザーの失敗が
// 他のユーザーの処理に影響しないことを検証する。
func TestJob_RunOnce_UserFailureDoesNotStopOthers(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"bad@example.com": testUser("bad@example.com", "pl-1"),
		"ok@example.com":  testUser("ok@example.com", "pl-2"),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{
		results: map[string]*model.ScanResult{
			"ok@example.com": testScanResult("ok@example.com"),
		},
		errs: map[string]error{
			"bad@example.com": errors.New("upstream error"),
		},
	}

	j := newTestJob(users, radar, engine, &fakePlaylistManager{}, nil)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	record, _ := radar.FindWeek(context.Background(), "ok@example.com", "2025-34")
	if record == nil {
		t.Error("expected record for ok@example.com despite other user's failure")
	}
	badRecord, _ := radar.FindWeek(context.Background(), "bad@example.com", "2025-34")
	if badRecord != nil {
		t.Error("failed user should not have a record")
	}
}

// TestJob_RunOnce_CoverFailureIsNotFatal はカバー画像の生成失敗が
// プレイリスト作成を妨げないことを検証する。
func TestJob_RunOnce_CoverFailureIsNotFatal(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{
		"user@example.com": testUser("user@example.com", ""),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{results: map[string]*model.ScanResult{
		"user@example.com": testScanResult("user@example.com"),
	}}
	mgr := &fakePlaylistManager{}
	covers := &fakeCoverProvider{buildErr: errors.New("image too large")}

	j := newTestJob(users, radar, engine, mgr, covers)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(mgr.created) != 1 {
		t.Errorf("created = %d, want 1", len(mgr.created))
	}
}

// TestJob_RunOnce_SanitizesReleaseText はリリース記録のテキストから
// マークアップが除去されることを検証する。
func TestJob_RunOnce_SanitizesReleaseText(t *testing.T) {
	result := testScanResult("user@example.com")
	result.Releases[0].Name = "<b>Bold</b> Album"
	result.Releases[0].ArtistName = "<script>alert(1)</script>Artist"

	users := &fakeUserRepo{users: map[string]*model.User{
		"user@example.com": testUser("user@example.com", "pl-1"),
	}}
	radar := &fakeRadarRepo{}
	engine := &fakeEngine{results: map[string]*model.ScanResult{
		"user@example.com": result,
	}}

	j := newTestJob(users, radar, engine, &fakePlaylistManager{}, nil)

	if err := j.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	record, _ := radar.FindWeek(context.Background(), "user@example.com", "2025-34")
	if record == nil {
		t.Fatal("expected week record")
	}
	if record.Releases[0].Name != "Bold Album" {
		t.Errorf("name = %q, want %q", record.Releases[0].Name, "Bold Album")
	}
	if record.Releases[0].ArtistName != "Artist" {
		t.Errorf("artistName = %q, want %q", record.Releases[0].ArtistName, "Artist")
	}
}

// TestJob_Start_StopsOnContextCancel はコンテキストキャンセルでジョブが停止することを検証する。
func TestJob_Start_StopsOnContextCancel(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*model.User{}}
	j := newTestJob(users, &fakeRadarRepo{}, &fakeEngine{}, &fakePlaylistManager{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		j.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not stop after context cancellation")
	}
}
