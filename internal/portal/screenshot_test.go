package portal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

type failingShotPage struct {
	*fakePage
}

func (p failingShotPage) Screenshot(ctx context.Context, path string) error {
	return errors.New("target closed")
}

func TestScreenshotNamedByUnixSeconds(t *testing.T) {
	dir := t.TempDir()
	s := NewScreenshotter(dir, arbor.NewLogger())
	s.now = func() time.Time { return time.Unix(1735689600, 999_000_000) }

	path := s.Capture(context.Background(), newFakePage(), "login_failed")
	assert.Equal(t, filepath.Join(dir, "login_failed_1735689600.png"), path)
	assert.FileExists(t, path)
}

func TestScreenshotFailureReturnsEmptyPath(t *testing.T) {
	s := NewScreenshotter(t.TempDir(), arbor.NewLogger())
	assert.Empty(t, s.Capture(context.Background(), failingShotPage{newFakePage()}, "robot"))

	var disabled *Screenshotter
	assert.Empty(t, disabled.Capture(context.Background(), newFakePage(), "robot"))
	assert.Empty(t, NewScreenshotter("", arbor.NewLogger()).Capture(context.Background(), newFakePage(), "robot"))
}
