package models

import "time"

// PostStatus is the lifecycle state of a blog post
type PostStatus string

const (
	PostStatusDraft      PostStatus = "draft"
	PostStatusGenerating PostStatus = "generating"
	PostStatusSelecting  PostStatus = "selecting"
	PostStatusReady      PostStatus = "ready"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPublished  PostStatus = "published"
	PostStatusFailed     PostStatus = "failed"
)

// BlogPost is the persisted post a publish job is built from
type BlogPost struct {
	ID                string               `json:"id"`
	UserID            string               `json:"user_id" badgerhold:"index"`
	SalonID           string               `json:"salon_id,omitempty"`
	Title             string               `json:"title"`
	Body              string               `json:"body"`
	AIPrompt          string               `json:"ai_prompt,omitempty"`
	Images            []string             `json:"images"`
	StylistID         string               `json:"stylist_id,omitempty"`
	CouponName        string               `json:"coupon_name,omitempty"`
	Status            PostStatus           `json:"status" badgerhold:"index"`
	Variations        []GeneratedVariation `json:"variations,omitempty"`
	SelectedVariation int                  `json:"selected_variation"` // -1 when none chosen
	PortalURL         string               `json:"portal_url,omitempty"`
	ScreenshotPath    string               `json:"screenshot_path,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
	PublishedAt       *time.Time           `json:"published_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// GeneratedVariation is one AI-drafted title/body pair
type GeneratedVariation struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
