package portal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
)

// Screenshotter saves best-effort diagnostic captures
type Screenshotter struct {
	dir    string
	logger arbor.ILogger
	now    func() time.Time
}

// NewScreenshotter writes into dir; an empty dir disables capture
func NewScreenshotter(dir string, logger arbor.ILogger) *Screenshotter {
	return &Screenshotter{dir: dir, logger: logger, now: time.Now}
}

// Capture returns the saved path, or "" when capture failed. It never returns an error.
func (s *Screenshotter) Capture(ctx context.Context, page Page, name string) string {
	if s == nil || s.dir == "" || page == nil {
		return ""
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.png", name, s.now().Unix()))
	if err := page.Screenshot(ctx, path); err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Screenshot capture failed")
		return ""
	}
	s.logger.Debug().Str("path", path).Msg("Screenshot saved")
	return path
}
