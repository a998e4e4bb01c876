package models

// MediaInfo is what the tags of a local audio file say about it.
type MediaInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Tagged bool   `json:"tagged"` // false when title/artist are filename fallbacks
}
