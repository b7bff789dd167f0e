package models

import "time"

type InlineMedia struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding"` // base64 (default) or base64url
}

type PublishRequest struct {
	UserID       int64         `json:"user_id"`
	Content      string        `json:"content"`
	MediaURLs    []string      `json:"media_urls"`
	MediaInline  []InlineMedia `json:"media_inline"`
	ContentTypes []string      `json:"content_types"`
	Platforms    []string      `json:"platforms"`
	ScheduledAt  *time.Time    `json:"scheduled_at,omitempty"`
}

func (r *PublishRequest) MediaCount() int {
	return len(r.MediaURLs) + len(r.MediaInline)
}

type PublishResult struct {
	Platform string   `json:"platform"`
	Success  bool     `json:"success"`
	PostID   string   `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

const (
	OutcomeAllSucceeded = "all_succeeded"
	OutcomePartial      = "partial"
	OutcomeFailed       = "failed"
)

type PublishOutcome struct {
	UserID  int64            `json:"user_id"`
	Status  string           `json:"status"`
	Results []*PublishResult `json:"results"`
}

func (o *PublishOutcome) Succeeded() bool {
	return o.Status != OutcomeFailed
}

// Errors lists "platform: message" for every failed result.
func (o *PublishOutcome) Errors() []string {
	var errs []string
	for _, r := range o.Results {
		if !r.Success {
			errs = append(errs, r.Platform+": "+r.Error)
		}
	}
	return errs
}

// Credentials is what a publisher needs to act on behalf of an account.
type Credentials struct {
	AccountID         int64
	PlatformAccountID string
	AccessToken       string
	AccessTokenSecret string
	Shared            bool
}

// MediaRef is a platform-side reference to an uploaded (or publicly hosted) media item.
type MediaRef struct {
	ID          string
	URL         string
	ContentType string
	// Data holds inline bytes for platforms that receive them on publish.
	Data        []byte
}

type UploadPhase string

const (
	PhaseInitialized UploadPhase = "initialized"
	PhaseAppending   UploadPhase = "appending"
	PhaseFinalized   UploadPhase = "finalized"
	PhaseFailed      UploadPhase = "failed"
)

type MediaUploadSession struct {
	MediaID      string
	TotalBytes   int64
	ContentType  string
	Phase        UploadPhase
	SegmentsSent int
}
