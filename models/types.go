// Package models contain needed models
package models

// LoginRequest carries the passphrase typed on the login form
type LoginRequest struct {
	Password string `json:"password" form:"password"`
}

// LoginResponse represents the response after a login attempt
type LoginResponse struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message,omitempty"`
}

// ErrorResponse is returned by every endpoint that fails
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TrackInfo represents metadata about the loaded audio file
type TrackInfo struct {
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Year       string  `json:"year,omitempty"`
	Genre      string  `json:"genre,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	Bitrate    int     `json:"bitrate,omitempty"`
	Duration   float64 `json:"duration"`
	Length     string  `json:"length"`
}

// TrackResponse describes the active file and the URLs its handles live under
type TrackResponse struct {
	Success     bool       `json:"success"`
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Size        int        `json:"size"`
	SizeMB      string     `json:"size_mb"`
	ContentType string     `json:"content_type"`
	AudioURL    string     `json:"audio_url"`
	DownloadURL string     `json:"download_url"`
	ExportURL   string     `json:"export_url,omitempty"`
	CoverURL    string     `json:"cover_url,omitempty"`
	CoverType   string     `json:"cover_type,omitempty"`
	Info        *TrackInfo `json:"info,omitempty"`
}

// SessionResponse is the state the page renders from
type SessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Track         *TrackResponse `json:"track,omitempty"`
}
