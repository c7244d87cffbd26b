package portal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/salonpress/internal/models"
)

var tokenPattern = regexp.MustCompile(`\{\{image_(\d+)\}\}`)

// marker stands in for a kept or inserted token until tokens are renumbered
const marker = "\x00img\x00"

// ImageToken renders the placeholder for image k (1-based)
func ImageToken(k int) string {
	return fmt.Sprintf("{{image_%d}}", k)
}

// SplitSegments splits body on placeholder tokens, keeping order. Empty text runs are dropped.
func SplitSegments(body string) []models.ContentSegment {
	var segments []models.ContentSegment
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(body, -1) {
		if text := body[last:m[0]]; text != "" {
			segments = append(segments, models.TextSegment(text))
		}
		idx, err := strconv.Atoi(body[m[2]:m[3]])
		if err == nil {
			segments = append(segments, models.ImageSegment(idx))
		}
		last = m[1]
	}
	if text := body[last:]; text != "" {
		segments = append(segments, models.TextSegment(text))
	}
	return segments
}

// StripPlaceholders removes every placeholder token
func StripPlaceholders(body string) string {
	return tokenPattern.ReplaceAllString(body, "")
}

// CountPlaceholders returns the number of placeholder tokens in body
func CountPlaceholders(body string) int {
	return len(tokenPattern.FindAllStringIndex(body, -1))
}

// NormalizePlaceholders repairs generated text so it holds exactly imageCount tokens,
// numbered 1..imageCount in reading order.
//
// Tokens outside 1..imageCount and repeated indices are dropped (first occurrence kept).
// Missing tokens are spread evenly over the paragraph breaks of the whole text that do
// not already touch a token, falling back to line breaks and then to the end of the text.
// Surviving tokens are renumbered by position, so the k-th token in the text always
// shows image k.
func NormalizePlaceholders(body string, imageCount int) string {
	if imageCount <= 0 {
		return StripPlaceholders(body)
	}

	var b strings.Builder
	seen := make(map[int]bool, imageCount)
	last, kept := 0, 0

	for _, m := range tokenPattern.FindAllStringSubmatchIndex(body, -1) {
		b.WriteString(body[last:m[0]])
		idx, err := strconv.Atoi(body[m[2]:m[3]])
		if err == nil && idx >= 1 && idx <= imageCount && !seen[idx] {
			seen[idx] = true
			b.WriteString(marker)
			kept++
		}
		last = m[1]
	}
	b.WriteString(body[last:])

	text := b.String()
	if missing := imageCount - kept; missing > 0 {
		text = insertMarkers(text, missing)
	}
	return renumber(text)
}

func insertMarkers(text string, count int) string {
	breaks := freeBreaks(text, "\n\n")
	if len(breaks) == 0 {
		breaks = freeBreaks(text, "\n")
	}
	if len(breaks) == 0 {
		return text + strings.Repeat("\n"+marker, count)
	}

	// Evenly spaced picks, ascending; distinct while count <= len(breaks)
	positions := make([]int, count)
	for k := 0; k < count; k++ {
		positions[k] = breaks[(2*k+1)*len(breaks)/(2*count)].start
	}

	var b strings.Builder
	prev := 0
	for _, p := range positions {
		b.WriteString(text[prev:p])
		b.WriteString("\n" + marker)
		prev = p
	}
	b.WriteString(text[prev:])
	return b.String()
}

type lineBreak struct {
	start, end int
}

// freeBreaks returns the sep runs of text that neither follow nor precede a marker,
// ignoring a run at the very start
func freeBreaks(text, sep string) []lineBreak {
	var breaks []lineBreak
	i := 0
	for i < len(text) {
		j := strings.Index(text[i:], sep)
		if j < 0 {
			break
		}
		pos := i + j
		// Collapse a run of separators into one break
		end := pos + len(sep)
		for end < len(text) && text[end] == '\n' {
			end++
		}
		if pos > 0 && !strings.HasSuffix(text[:pos], marker) && !strings.HasPrefix(text[end:], marker) {
			breaks = append(breaks, lineBreak{start: pos, end: end})
		}
		i = end
	}
	return breaks
}

func renumber(text string) string {
	var b strings.Builder
	k := 0
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		k++
		b.WriteString(text[:i])
		b.WriteString(ImageToken(k))
		text = text[i+len(marker):]
	}
}

// PlaceholderIndices lists token indices in reading order
func PlaceholderIndices(body string) []int {
	var out []int
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			out = append(out, idx)
		}
	}
	return out
}
