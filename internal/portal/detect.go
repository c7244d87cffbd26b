package portal

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const (
	MessagePublished = "Blog post published successfully"
	MessageUnclear   = "Publication status unclear"
)

// Observation is what the page looked like after the commit click
type Observation struct {
	URL            string
	Text           string
	HTML           string
	HasBackControl bool
}

// Detection is the verdict over an Observation
type Detection struct {
	Success       bool
	Message       string
	OnComplete    bool
	OnConfirm     bool
	PhraseMatched bool
	Phrase        string
}

// DetectSuccess decides whether the portal accepted the post. It only touches its input.
//
// Completion URL plus a success phrase or a back-to-list control is success.
// Everything else, including still sitting on the confirm page, is reported as unclear.
func (c *Catalogue) DetectSuccess(obs Observation) Detection {
	url := strings.ToLower(obs.URL)
	d := Detection{
		OnComplete: containsAny(url, c.Success.CompletePatterns),
		OnConfirm:  containsAny(url, c.Success.ConfirmPatterns),
	}
	d.Phrase, d.PhraseMatched = c.matchPhrase(obs)

	if d.OnComplete && (d.PhraseMatched || obs.HasBackControl) {
		d.Success = true
		d.Message = MessagePublished
		return d
	}

	d.Message = MessageUnclear
	return d
}

func (c *Catalogue) matchPhrase(obs Observation) (string, bool) {
	haystacks := []string{obs.Text, obs.HTML}
	if obs.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(obs.HTML)); err == nil {
			haystacks = append(haystacks, doc.Text())
		}
	}
	for _, h := range haystacks {
		if h == "" {
			continue
		}
		compact := stripSpace(h)
		for _, phrase := range c.Success.Phrases {
			if strings.Contains(h, phrase) || strings.Contains(compact, stripSpace(phrase)) {
				return phrase, true
			}
		}
	}
	return "", false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
