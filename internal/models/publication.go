package models

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Credential is a portal login. Secret is plaintext only for the lifetime of one browser session.
type Credential struct {
	LoginID string `json:"login_id" validate:"required"`
	Secret  []byte `json:"-" validate:"required,min=1"`
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{LoginID:%s Secret:[REDACTED]}", c.LoginID)
}

func (c Credential) GoString() string {
	return c.String()
}

// Wipe zeroes the secret in place
func (c *Credential) Wipe() {
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Secret = nil
}

// PublicationRequest is built fresh for every publish attempt
type PublicationRequest struct {
	PostID       string     `json:"post_id" validate:"required"`
	Title        string     `json:"title" validate:"required"`
	Body         string     `json:"body"`
	Images       []string   `json:"images" validate:"dive,required"`
	StylistID    string     `json:"stylist_id,omitempty"`
	CouponName   string     `json:"coupon_name,omitempty"`
	SalonID      string     `json:"salon_id,omitempty"`
	CategoryCode string     `json:"category_code,omitempty"`
	Credentials  Credential `json:"-"`
}

// Validate checks field presence and the title length limit
func (r *PublicationRequest) Validate(titleLimit int) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid publication request: %w", err)
	}
	if titleLimit > 0 && utf8.RuneCountInString(r.Title) > titleLimit {
		return fmt.Errorf("invalid publication request: title has %d characters, limit is %d",
			utf8.RuneCountInString(r.Title), titleLimit)
	}
	return nil
}

// PublicationResult is what a publish attempt reports back
type PublicationResult struct {
	Success         bool   `json:"success"`
	URL             string `json:"url,omitempty"`
	ScreenshotPath  string `json:"screenshot_path,omitempty"`
	Message         string `json:"message"`
	ReducedFidelity bool   `json:"reduced_fidelity,omitempty"` // Images uploaded without positional guarantees
}
