// Catalogus - Media Library Synchronization Engine
// Copyright 2026 Catalogus Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/catalogus/catalogus

package models

// Item is one catalog entry of the remote server, as returned by the items
// and single-item endpoints. Only the fields the crawl requests via the
// Fields query parameter are populated; everything else stays zero.
type Item struct {
	ID       string `json:"Id"`
	Name     string `json:"Name"`
	Type     string `json:"Type"`
	ServerID string `json:"ServerId,omitempty"`
	Etag     string `json:"Etag,omitempty"`

	IsFolder  bool   `json:"IsFolder,omitempty"`
	Container string `json:"Container,omitempty"`
	Path      string `json:"Path,omitempty"`
	MediaType string `json:"MediaType,omitempty"`

	SortName      string `json:"SortName,omitempty"`
	OriginalTitle string `json:"OriginalTitle,omitempty"`

	// ISO 8601 timestamps as sent on the wire.
	PremiereDate string `json:"PremiereDate,omitempty"`
	DateCreated  string `json:"DateCreated,omitempty"`

	ProductionYear int `json:"ProductionYear,omitempty"`

	CommunityRating float64 `json:"CommunityRating,omitempty"`
	CriticRating    float64 `json:"CriticRating,omitempty"`
	VoteCount       int     `json:"VoteCount,omitempty"`
	OfficialRating  string  `json:"OfficialRating,omitempty"`

	Overview      string   `json:"Overview,omitempty"`
	ShortOverview string   `json:"ShortOverview,omitempty"`
	Taglines      []string `json:"Taglines,omitempty"`

	Genres              []string     `json:"Genres,omitempty"`
	Studios             []NameIDPair `json:"Studios,omitempty"`
	ProductionLocations []string     `json:"ProductionLocations,omitempty"`
	Tags                []string     `json:"Tags,omitempty"`
	People              []Person     `json:"People,omitempty"`

	// External ids keyed by provider name (Imdb, Tmdb, Tvdb, ...).
	ProviderIDs map[string]string `json:"ProviderIds,omitempty"`

	// Episode/season hierarchy.
	IndexNumber       int    `json:"IndexNumber,omitempty"`
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"`
	SeriesName        string `json:"SeriesName,omitempty"`
	SeriesID          string `json:"SeriesId,omitempty"`
	SeasonID          string `json:"SeasonId,omitempty"`
	ParentID          string `json:"ParentId,omitempty"`
	Status            string `json:"Status,omitempty"`

	// Duration in ticks (100ns units).
	RunTimeTicks int64 `json:"RunTimeTicks,omitempty"`

	LocalTrailerCount int `json:"LocalTrailerCount,omitempty"`

	UserData     *ItemUserData `json:"UserData,omitempty"`
	MediaStreams []MediaStream `json:"MediaStreams,omitempty"`
	MediaSources []MediaSource `json:"MediaSources,omitempty"`

	ImageTags         map[string]string `json:"ImageTags,omitempty"`
	BackdropImageTags []string          `json:"BackdropImageTags,omitempty"`
}

// NameIDPair is Emby's generic named reference (studios, genre items).
type NameIDPair struct {
	Name string `json:"Name"`
	ID   string `json:"Id,omitempty"`
}

// Person is one cast or crew credit.
type Person struct {
	Name string `json:"Name"`
	Type string `json:"Type,omitempty"` // "Actor", "Director", "Writer"
	Role string `json:"Role,omitempty"`
}

// ItemUserData carries per-user playback state for an item.
type ItemUserData struct {
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks,omitempty"`
	PlayCount             int    `json:"PlayCount,omitempty"`
	IsFavorite            bool   `json:"IsFavorite,omitempty"`
	Played                bool   `json:"Played,omitempty"`
	LastPlayedDate        string `json:"LastPlayedDate,omitempty"`
}

// MediaStream is one video/audio/subtitle stream of an item.
type MediaStream struct {
	Type          string `json:"Type"`
	Codec         string `json:"Codec,omitempty"`
	Profile       string `json:"Profile,omitempty"`
	Language      string `json:"Language,omitempty"`
	DisplayTitle  string `json:"DisplayTitle,omitempty"`
	Index         int    `json:"Index,omitempty"`
	Height        int    `json:"Height,omitempty"`
	Width         int    `json:"Width,omitempty"`
	AspectRatio   string `json:"AspectRatio,omitempty"`
	Video3DFormat string `json:"Video3DFormat,omitempty"`
	Channels      int    `json:"Channels,omitempty"`
	IsExternal    bool   `json:"IsExternal,omitempty"`
	DeliveryURL   string `json:"DeliveryUrl,omitempty"`
}

// MediaSource is one playable file or stream of an item.
type MediaSource struct {
	ID                   string `json:"Id"`
	Protocol             string `json:"Protocol,omitempty"`
	Container            string `json:"Container,omitempty"`
	Path                 string `json:"Path,omitempty"`
	SupportsDirectPlay   bool   `json:"SupportsDirectPlay,omitempty"`
	SupportsDirectStream bool   `json:"SupportsDirectStream,omitempty"`
}

// ticksPerSecond converts Emby's 100ns ticks to seconds.
const ticksPerSecond = 10000000

// RuntimeSeconds returns the item duration in seconds.
func (i *Item) RuntimeSeconds() int64 {
	return i.RunTimeTicks / ticksPerSecond
}

// ResumePositionSeconds returns the playback resume point in seconds.
func (u *ItemUserData) ResumePositionSeconds() int64 {
	return u.PlaybackPositionTicks / ticksPerSecond
}

// PrimaryStream returns the first stream of the given type, or nil.
func (i *Item) PrimaryStream(streamType string) *MediaStream {
	for idx := range i.MediaStreams {
		if i.MediaStreams[idx].Type == streamType {
			return &i.MediaStreams[idx]
		}
	}
	return nil
}

// DefaultMediaSource returns the first media source, or nil. Emby orders
// sources by preference.
func (i *Item) DefaultMediaSource() *MediaSource {
	if len(i.MediaSources) == 0 {
		return nil
	}
	return &i.MediaSources[0]
}
