package domain

import "time"

// PostRecord logs a post this service published on a caller's behalf.
type PostRecord struct {
	ID        int64     `json:"id"`
	PostID    string    `json:"post_id"`
	SessionID string    `json:"session_id,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Images    []string  `json:"images"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
