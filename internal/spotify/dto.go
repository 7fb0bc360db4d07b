package spotify

// 上流APIのレスポンス形式に対応する内部DTO。

type imageObject struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type artistObject struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

type trackObject struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	URI     string         `json:"uri"`
	Artists []artistObject `json:"artists"`
}

type trackPage struct {
	Items []trackObject `json:"items"`
	Next  string        `json:"next"`
}

type albumObject struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AlbumGroup  string         `json:"album_group"`
	AlbumType   string         `json:"album_type"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	URI         string         `json:"uri"`
	Artists     []artistObject `json:"artists"`
	Images      []imageObject  `json:"images"`
	Tracks      *trackPage     `json:"tracks"`
}

type albumPage struct {
	Items []albumObject `json:"items"`
	Next  string        `json:"next"`
}

type severalAlbumsResponse struct {
	Albums []albumObject `json:"albums"`
}

type followedArtistsResponse struct {
	Artists struct {
		Items   []artistObject `json:"items"`
		Next    string         `json:"next"`
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"artists"`
}

type topTracksResponse struct {
	Items []trackObject `json:"items"`
}

type topArtistsResponse struct {
	Items []artistObject `json:"items"`
}

type userProfileResponse struct {
	ID string `json:"id"`
}

type createPlaylistResponse struct {
	ID string `json:"id"`
}

type playlistTracksResponse struct {
	Items []struct {
		Track trackObject `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

// Album は上流APIのアルバム情報を平坦化した公開型。
type Album struct {
	ID          string
	Name        string
	AlbumGroup  string
	AlbumType   string
	ReleaseDate string
	TotalTracks int
	URI         string
	ArtistID    string
	ArtistName  string
	ImageURL    string
	TrackURIs   []string
}

// flattenAlbum はDTOをAlbumに変換する。
func flattenAlbum(a albumObject) Album {
	album := Album{
		ID:          a.ID,
		Name:        a.Name,
		AlbumGroup:  a.AlbumGroup,
		AlbumType:   a.AlbumType,
		ReleaseDate: a.ReleaseDate,
		TotalTracks: a.TotalTracks,
		URI:         a.URI,
	}
	if len(a.Artists) > 0 {
		album.ArtistID = a.Artists[0].ID
		album.ArtistName = a.Artists[0].Name
	}
	if len(a.Images) > 0 {
		album.ImageURL = a.Images[0].URL
	}
	if a.Tracks != nil {
		for _, tr := range a.Tracks.Items {
			album.TrackURIs = append(album.TrackURIs, tr.URI)
		}
	}
	return album
}
