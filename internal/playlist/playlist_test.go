package playlist

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// fakeAPI はプレイリスト操作の呼び出しを記録するモック。
type fakeAPI struct {
	userID       string
	playlistID   string
	existingURIs []string

	meErr     error
	createErr error
	coverErr  error
	addErr    error

	createdName string
	createdDesc string
	uploaded    []byte
	added       [][]string
	removed     [][]string
	calls       []string
}

func (f *fakeAPI) Me(ctx context.Context) (string, error) {
	f.calls = append(f.calls, "me")
	return f.userID, f.meErr
}

func (f *fakeAPI) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (string, error) {
	f.calls = append(f.calls, "create")
	f.createdName = name
	f.createdDesc = description
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.playlistID, nil
}

func (f *fakeAPI) AddPlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	f.calls = append(f.calls, "add")
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, uris)
	return nil
}

func (f *fakeAPI) PlaylistTrackURIs(ctx context.Context, playlistID string) ([]string, error) {
	f.calls = append(f.calls, "list")
	return f.existingURIs, nil
}

func (f *fakeAPI) RemovePlaylistTracks(ctx context.Context, playlistID string, uris []string) error {
	f.calls = append(f.calls, "remove")
	f.removed = append(f.removed, uris)
	return nil
}

func (f *fakeAPI) UploadPlaylistCover(ctx context.Context, playlistID string, b64JPEG []byte) error {
	f.calls = append(f.calls, "cover")
	if f.coverErr != nil {
		return f.coverErr
	}
	f.uploaded = b64JPEG
	return nil
}

func newTestManager(api *fakeAPI, buf *bytes.Buffer) (*Manager, *[]time.Duration) {
	m := NewManager(api, newTestLogger(buf))
	var sleeps []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return m, &sleeps
}

func TestManager_Ensure_CreatesAndPopulates(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{userID: "owner", playlistID: "pl-1"}
	m, sleeps := newTestManager(api, &buf)

	uris := []string{"spotify:track:t1", "spotify:track:t2"}
	cover := []byte("base64data")

	id, err := m.Ensure(context.Background(), "Release Radar 2025-34", "Weekly releases", cover, uris)
	if err != nil {
		t.Fatalf("Ensureがエラーを返した: %v", err)
	}
	if id != "pl-1" {
		t.Errorf("playlistID = %s, want pl-1", id)
	}

	// 作成 → 待機 → カバー → 待機 → トラック追加の順
	wantCalls := []string{"me", "create", "cover", "add"}
	if len(api.calls) != len(wantCalls) {
		t.Fatalf("呼び出し = %v, want %v", api.calls, wantCalls)
	}
	for i, call := range wantCalls {
		if api.calls[i] != call {
			t.Errorf("calls[%d] = %s, want %s", i, api.calls[i], call)
		}
	}

	if len(*sleeps) != 2 {
		t.Errorf("待機回数 = %d, want 2", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != settleDelay {
			t.Errorf("待機時間 = %v, want %v", d, settleDelay)
		}
	}

	if api.createdName != "Release Radar 2025-34" {
		t.Errorf("作成時の名前 = %s", api.createdName)
	}
	if string(api.uploaded) != "base64data" {
		t.Errorf("投入されたカバー = %s", api.uploaded)
	}
	if len(api.added) != 1 || len(api.added[0]) != 2 {
		t.Errorf("追加トラック = %v", api.added)
	}
}

func TestManager_Ensure_NoCoverSkipsUpload(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{userID: "owner", playlistID: "pl-1"}
	m, sleeps := newTestManager(api, &buf)

	if _, err := m.Ensure(context.Background(), "Name", "", nil, []string{"spotify:track:t1"}); err != nil {
		t.Fatalf("Ensureがエラーを返した: %v", err)
	}

	for _, call := range api.calls {
		if call == "cover" {
			t.Error("カバーなしでUploadPlaylistCoverを呼んではならない")
		}
	}
	// カバーなしの場合は作成直後の1回のみ待機する
	if len(*sleeps) != 1 {
		t.Errorf("待機回数 = %d, want 1", len(*sleeps))
	}
}

func TestManager_Ensure_CoverFailureIsNotFatal(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{userID: "owner", playlistID: "pl-1", coverErr: errors.New("image rejected")}
	m, _ := newTestManager(api, &buf)

	id, err := m.Ensure(context.Background(), "Name", "", []byte("b64"), []string{"spotify:track:t1"})
	if err != nil {
		t.Fatalf("カバー投入の失敗で全体が失敗してはならない: %v", err)
	}
	if id != "pl-1" {
		t.Errorf("playlistID = %s", id)
	}
	if len(api.added) != 1 {
		t.Error("カバー失敗後もトラックは追加されるべき")
	}
	if !strings.Contains(buf.String(), "WARN") {
		t.Error("カバー失敗は警告ログに記録されるべき")
	}
}

func TestManager_Ensure_CreateFailure(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{userID: "owner", createErr: errors.New("denied")}
	m, _ := newTestManager(api, &buf)

	if _, err := m.Ensure(context.Background(), "Name", "", nil, nil); err == nil {
		t.Fatal("作成失敗時はエラーを返すべき")
	}
	for _, call := range api.calls {
		if call == "add" || call == "cover" {
			t.Errorf("作成失敗後に %s を呼んではならない", call)
		}
	}
}

func TestManager_ReplaceTracks_RemovesThenAdds(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{existingURIs: []string{"spotify:track:old1", "spotify:track:old2"}}
	m, _ := newTestManager(api, &buf)

	newURIs := []string{"spotify:track:new1"}
	if err := m.ReplaceTracks(context.Background(), "pl-1", newURIs); err != nil {
		t.Fatalf("ReplaceTracksがエラーを返した: %v", err)
	}

	wantCalls := []string{"list", "remove", "add"}
	if len(api.calls) != len(wantCalls) {
		t.Fatalf("呼び出し = %v, want %v", api.calls, wantCalls)
	}
	for i, call := range wantCalls {
		if api.calls[i] != call {
			t.Errorf("calls[%d] = %s, want %s", i, api.calls[i], call)
		}
	}

	if len(api.removed) != 1 || len(api.removed[0]) != 2 {
		t.Errorf("除去トラック = %v", api.removed)
	}
	if len(api.added) != 1 || api.added[0][0] != "spotify:track:new1" {
		t.Errorf("追加トラック = %v", api.added)
	}
}

func TestManager_ReplaceTracks_EmptyPlaylistSkipsRemove(t *testing.T) {
	var buf bytes.Buffer
	api := &fakeAPI{existingURIs: nil}
	m, _ := newTestManager(api, &buf)

	if err := m.ReplaceTracks(context.Background(), "pl-1", []string{"spotify:track:t1"}); err != nil {
		t.Fatalf("ReplaceTracksがエラーを返した: %v", err)
	}

	for _, call := range api.calls {
		if call == "remove" {
			t.Error("既存トラックが空の場合はRemovePlaylistTracksを呼んではならない")
		}
	}
}
