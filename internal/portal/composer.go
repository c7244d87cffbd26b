package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FillReport describes how the body ended up in the form
type FillReport struct {
	ReducedFidelity bool
	ImagesPlaced    int
}

// UploadProgress is called after each image lands in the form
type UploadProgress func(done, total int)

var errEditorMissing = errors.New("rich editor not found")

// FillContent writes body with every image at its token position. When the rich
// editor is unusable for a reason other than an upload failure, the body goes into
// the plain textarea with images appended after it.
func (c *Client) FillContent(ctx context.Context, body string, images []string, onImage UploadProgress) (FillReport, error) {
	if onImage == nil {
		onImage = func(int, int) {}
	}
	body = NormalizePlaceholders(body, len(images))

	report, err := c.fillRich(ctx, body, images, onImage)
	if err == nil {
		return report, nil
	}
	if ctx.Err() != nil {
		return report, err
	}
	var ae *AutomationError
	if errors.As(err, &ae) && (ae.Kind == KindUpload || ae.Kind == KindRobotDetection) {
		return report, err
	}

	c.logger.Warn().Err(err).Msg("Rich editor fill failed, falling back to plain textarea")
	return c.fillPlain(ctx, body, images, onImage)
}

func (c *Client) fillRich(ctx context.Context, body string, images []string, onImage UploadProgress) (FillReport, error) {
	var report FillReport
	if !c.editor.Present(ctx) {
		return report, errEditorMissing
	}
	if err := c.editor.Clear(ctx); err != nil {
		return report, err
	}
	if err := c.editor.MarkExisting(ctx); err != nil {
		return report, err
	}

	segments := SplitSegments(body)
	c.logger.Debug().
		Int("segments", len(segments)).
		Int("images", len(images)).
		Msg("Filling editor")

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !seg.IsImage() {
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			if err := c.editor.AppendText(ctx, seg.Text); err != nil {
				return report, err
			}
			continue
		}

		idx := seg.ImageIndex
		if idx < 1 || idx > len(images) {
			continue
		}
		if err := c.placeImage(ctx, idx, images[idx-1]); err != nil {
			return report, err
		}
		report.ImagesPlaced++
		onImage(report.ImagesPlaced, len(images))
	}

	if ok, err := c.editor.Sync(ctx); err != nil || !ok {
		c.logger.Warn().Err(err).Msg("Editor content sync skipped")
	}
	return report, nil
}

// placeImage uploads one image and binds it at a freshly inserted anchor
func (c *Client) placeImage(ctx context.Context, idx int, path string) error {
	anchor := fmt.Sprintf("nicedit-image-anchor-%d-%s", idx, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := c.editor.InsertAnchor(ctx, anchor); err != nil {
		return err
	}
	c.editor.CaretToEnd(ctx)

	before, err := c.editor.ImageCount(ctx)
	if err != nil {
		return err
	}
	if err := c.UploadSingleImage(ctx, path); err != nil {
		return err
	}

	count, err := c.waitEditor(ctx, c.opts.ImageCountTimeout, func() (bool, error) {
		n, err := c.editor.ImageCount(ctx)
		return n >= before+1, err
	})
	if err != nil || !count {
		return UploadError(fmt.Sprintf("image %d did not appear in editor after upload", idx), err)
	}
	if n, _ := c.editor.ImageCount(ctx); n != before+1 {
		return UploadError(fmt.Sprintf("editor holds %d images after upload, expected %d", n, before+1), nil)
	}

	unbound, err := c.waitEditor(ctx, c.opts.UnboundImageTimeout, func() (bool, error) {
		return c.editor.HasUnbound(ctx)
	})
	if err != nil || !unbound {
		return UploadError(fmt.Sprintf("uploaded image %d not detected in editor", idx), err)
	}
	bound, err := c.editor.BindToAnchor(ctx, anchor)
	if err != nil || !bound {
		return UploadError(fmt.Sprintf("failed to position image %d at its anchor", idx), err)
	}
	c.editor.CaretToEnd(ctx)
	c.logger.Debug().Int("image", idx).Msg("Image placed")
	return nil
}

// waitEditor polls cond through the page so waits follow the page's clock
func (c *Client) waitEditor(ctx context.Context, timeout time.Duration, cond func() (bool, error)) (bool, error) {
	const step = 250 * time.Millisecond
	for waited := time.Duration(0); ; waited += step {
		ok, err := cond()
		if err == nil && ok {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if waited >= timeout {
			return false, err
		}
		if err := c.page.Sleep(ctx, step); err != nil {
			return false, err
		}
	}
}

func (c *Client) fillPlain(ctx context.Context, body string, images []string, onImage UploadProgress) (FillReport, error) {
	report := FillReport{ReducedFidelity: true}

	// Anything a failed rich fill left behind would double the image count
	if c.editor.Present(ctx) {
		if err := c.editor.Clear(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Could not clear editor before fallback fill")
		}
	}

	sel, ok := resolve(ctx, c.page, c.catalogue.Form.FallbackTextareas)
	if !ok {
		return report, ElementNotFoundError("no content field found", c.currentURL(ctx), nil)
	}
	if err := c.page.Fill(ctx, sel, StripPlaceholders(body)); err != nil {
		return report, GenericPublicationError("failed to fill content field", err)
	}

	for i, path := range images {
		if err := c.UploadSingleImage(ctx, path); err != nil {
			return report, err
		}
		report.ImagesPlaced++
		onImage(i+1, len(images))
	}
	if ok, err := c.editor.Sync(ctx); err != nil || !ok {
		c.logger.Debug().Err(err).Msg("Editor content sync skipped after fallback fill")
	}
	c.logger.Warn().Int("images", report.ImagesPlaced).Msg("Content filled without inline image placement")
	return report, nil
}

// UploadSingleImage runs the uploader modal for path, retrying once
func (c *Client) UploadSingleImage(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if _, err := os.Stat(path); err != nil {
		return UploadError(fmt.Sprintf("image %s is not readable", name), err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.UploadAttempts; attempt++ {
		err := c.uploadOnce(ctx, path)
		if err == nil {
			c.logger.Debug().Str("image", name).Int("attempt", attempt).Msg("Image uploaded")
			return nil
		}
		if ctx.Err() != nil {
			return UploadError("upload interrupted", ctx.Err())
		}
		var ae *AutomationError
		if errors.As(err, &ae) && ae.Kind == KindRobotDetection {
			return err
		}
		lastErr = err
		c.logger.Warn().Str("image", name).Int("attempt", attempt).Err(err).Msg("Image upload attempt failed")
		if attempt < c.opts.UploadAttempts {
			if err := c.page.Sleep(ctx, c.opts.UploadRetryPause); err != nil {
				return UploadError("upload interrupted", err)
			}
		}
	}
	return UploadError(fmt.Sprintf("image %s failed after %d attempts", name, c.opts.UploadAttempts), lastErr)
}

func (c *Client) uploadOnce(ctx context.Context, path string) error {
	up := c.catalogue.Upload

	trigger, ok := resolve(ctx, c.page, up.Trigger)
	if !ok {
		return errors.New("upload button not found")
	}
	if err := c.page.Click(ctx, trigger); err != nil {
		return fmt.Errorf("upload button click: %w", err)
	}
	if err := c.page.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}

	input, ok := resolve(ctx, c.page, up.FileInput)
	if !ok {
		return errors.New("file input not found")
	}
	if err := c.page.SetFiles(ctx, input, []string{path}); err != nil {
		return fmt.Errorf("set file: %w", err)
	}
	if err := c.page.WaitVisible(ctx, up.Thumbnail, c.opts.ThumbnailTimeout); err != nil {
		return fmt.Errorf("thumbnail did not appear: %w", err)
	}
	if err := c.page.WaitVisible(ctx, up.Submit, c.opts.SubmitTimeout); err != nil {
		return fmt.Errorf("submit did not become active: %w", err)
	}
	if err := c.page.Click(ctx, up.Submit); err != nil {
		return fmt.Errorf("submit click: %w", err)
	}
	if err := c.page.WaitHidden(ctx, up.Modal, c.opts.ModalTimeout); err != nil {
		return fmt.Errorf("upload modal did not close: %w", err)
	}

	if !c.editor.CaretToEnd(ctx) {
		c.logger.Debug().Msg("Caret restore after upload failed")
	}
	return nil
}
