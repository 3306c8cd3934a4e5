// ABOUTME: Domain types returned by the gateway repositories
// ABOUTME: JSON tags match the gateway's snake_case wire format

package repository

import "time"

// Account is the signed-in user's account.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Plan         string    `json:"plan"`
	Entitlements []string  `json:"entitlements"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate carries the fields a user may change. Nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Email       *string `json:"email,omitempty"`
}

// AppConfig is the app-wide configuration served by the gateway. It is not
// scoped to an account.
type AppConfig struct {
	MinimumVersion string            `json:"minimum_version"`
	SupportEmail   string            `json:"support_email"`
	Features       map[string]bool   `json:"features"`
	Limits         map[string]int    `json:"limits"`
	Links          map[string]string `json:"links,omitempty"`
}

// Prompt is a recording prompt.
type Prompt struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Recording is an item of the user's history.
type Recording struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	PromptID          string    `json:"prompt_id,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds"`
	TranscriptPreview string    `json:"transcript_preview,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateUploadRequest describes a file about to be uploaded.
type CreateUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PromptID    string `json:"prompt_id,omitempty"`
}

// Upload states
const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
)

// Upload is a server-side upload slot.
type Upload struct {
	ID          string    `json:"id"`
	UploadURL   string    `json:"upload_url"`
	Status      string    `json:"status"`
	RecordingID string    `json:"recording_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}
