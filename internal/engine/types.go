package engine

import "time"

// --- Source types ---

// Video is a recorded meeting published on YouTube.
type Video struct {
	ID          string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// WatchURL returns the public watch URL for the video.
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Agenda is a published meeting agenda and the addresses found in its business sections.
type Agenda struct {
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Addresses []string `json:"addresses"`
}

// Location is a geocoded point.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
