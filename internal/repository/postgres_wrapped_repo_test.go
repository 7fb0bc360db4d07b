package repository

import (
	"encoding/json"
	"testing"

	"github.com/domgiordano/xomify-backend/internal/model"
)

// PostgresWrappedRepoはWrappedRepositoryインターフェースを満たすことを検証
func TestPostgresWrappedRepo_ImplementsInterface(t *testing.T) {
	var _ WrappedRepository = (*PostgresWrappedRepo)(nil)
}

// NewPostgresWrappedRepoが正しく初期化されることを検証
func TestNewPostgresWrappedRepo_Initializes(t *testing.T) {
	repo := NewPostgresWrappedRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 期間別サマリーがJSONBカラム向けに正しくシリアライズされることを検証
func TestPostgresWrappedRepo_TermsRoundTrip(t *testing.T) {
	terms := map[string]model.TermSummary{
		model.TermShort: {
			Tracks:  []model.TopTrack{{ID: "t1", Name: "Track One", ArtistName: "Artist"}},
			Artists: []model.TopArtist{{ID: "a1", Name: "Artist One"}},
			Genres:  map[string]int{"indie rock": 3},
		},
	}

	data, err := json.Marshal(terms)
	if err != nil {
		t.Fatalf("marshalに失敗した: %v", err)
	}

	var decoded map[string]model.TermSummary
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshalに失敗した: %v", err)
	}

	short, ok := decoded[model.TermShort]
	if !ok {
		t.Fatalf("short_termが含まれていない: %v", decoded)
	}
	if len(short.Tracks) != 1 || short.Tracks[0].ID != "t1" {
		t.Errorf("Tracks = %+v", short.Tracks)
	}
	if short.Genres["indie rock"] != 3 {
		t.Errorf("Genres = %v", short.Genres)
	}
}
