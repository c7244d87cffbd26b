package portal

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultCatalogue []byte

// Candidates is an ordered selector list resolved first-match-wins
type Candidates []string

// NavHop is one menu step on the way to the blog form
type NavHop struct {
	Name       string     `yaml:"name"`
	Selectors  Candidates `yaml:"selectors"`
	URLPattern string     `yaml:"url_pattern"`

	urlRe *regexp.Regexp
}

// Catalogue is the data-driven description of the portal's UI
type Catalogue struct {
	Login struct {
		UserID            Candidates `yaml:"user_id"`
		Password          Candidates `yaml:"password"`
		Submit            Candidates `yaml:"submit"`
		SuccessIndicators Candidates `yaml:"success_indicators"`
		ErrorMessages     Candidates `yaml:"error_messages"`
		Captcha           Candidates `yaml:"captcha"`
		LoginURLMarker    string     `yaml:"login_url_marker"`
		RedirectPattern   string     `yaml:"redirect_pattern"`
		FinalURLPattern   string     `yaml:"final_url_pattern"`
	} `yaml:"login"`

	RobotMarkers Candidates `yaml:"robot_markers"`
	Blockers     Candidates `yaml:"blockers"`

	Salon struct {
		Chooser        string `yaml:"chooser"`
		CandidateLinks string `yaml:"candidate_links"`
		ByID           string `yaml:"by_id"`
		ByHref         string `yaml:"by_href"`
	} `yaml:"salon"`

	Navigation []NavHop `yaml:"navigation"`

	Form struct {
		Stylist           Candidates `yaml:"stylist"`
		Category          Candidates `yaml:"category"`
		Title             Candidates `yaml:"title"`
		Editor            Candidates `yaml:"editor"`
		MirrorField       string     `yaml:"mirror_field"`
		EditorInstance    string     `yaml:"editor_instance"`
		FallbackTextareas Candidates `yaml:"fallback_textareas"`
	} `yaml:"form"`

	Upload struct {
		Trigger   Candidates `yaml:"trigger"`
		Modal     string     `yaml:"modal"`
		FileInput Candidates `yaml:"file_input"`
		Thumbnail string     `yaml:"thumbnail"`
		Submit    string     `yaml:"submit"`
	} `yaml:"upload"`

	Coupon struct {
		Trigger Candidates `yaml:"trigger"`
		Modal   string     `yaml:"modal"`
		Labels  string     `yaml:"labels"`
		Apply   Candidates `yaml:"apply"`
	} `yaml:"coupon"`

	Actions struct {
		Confirm    Candidates `yaml:"confirm"`
		Commit     Candidates `yaml:"commit"`
		FormErrors Candidates `yaml:"form_errors"`
	} `yaml:"actions"`

	Success struct {
		CompletePatterns []string   `yaml:"complete_patterns"`
		ConfirmPatterns  []string   `yaml:"confirm_patterns"`
		Phrases          []string   `yaml:"phrases"`
		BackControls     Candidates `yaml:"back_controls"`
		BackLinkTexts    []string   `yaml:"back_link_texts"`
	} `yaml:"success"`

	redirectRe *regexp.Regexp
	finalURLRe *regexp.Regexp
}

// LoadCatalogue parses the catalogue at path, or the embedded default when path is empty
func LoadCatalogue(path string) (*Catalogue, error) {
	data := defaultCatalogue
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read selector catalogue %s: %w", path, err)
		}
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates a YAML catalogue
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse selector catalogue: %w", err)
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogue) compile() error {
	required := map[string]Candidates{
		"login.user_id":             c.Login.UserID,
		"login.password":            c.Login.Password,
		"login.submit":              c.Login.Submit,
		"login.success_indicators":  c.Login.SuccessIndicators,
		"form.title":                c.Form.Title,
		"form.editor":               c.Form.Editor,
		"form.fallback_textareas":   c.Form.FallbackTextareas,
		"upload.trigger":            c.Upload.Trigger,
		"upload.file_input":         c.Upload.FileInput,
		"actions.confirm":           c.Actions.Confirm,
		"actions.commit":            c.Actions.Commit,
		"success.complete_patterns": c.Success.CompletePatterns,
		"success.phrases":           c.Success.Phrases,
	}
	for name, list := range required {
		if len(list) == 0 {
			return fmt.Errorf("selector catalogue: %s must not be empty", name)
		}
	}
	if len(c.Navigation) == 0 {
		return fmt.Errorf("selector catalogue: navigation must list at least one hop")
	}
	if c.Upload.Modal == "" || c.Upload.Thumbnail == "" || c.Upload.Submit == "" {
		return fmt.Errorf("selector catalogue: upload modal, thumbnail and submit are required")
	}
	if !strings.Contains(c.Salon.ByID, "%s") || !strings.Contains(c.Salon.ByHref, "%s") {
		return fmt.Errorf("selector catalogue: salon.by_id and salon.by_href need a %%s placeholder")
	}

	var err error
	if c.redirectRe, err = compileOptional(c.Login.RedirectPattern); err != nil {
		return fmt.Errorf("selector catalogue: login.redirect_pattern: %w", err)
	}
	if c.finalURLRe, err = compileOptional(c.Login.FinalURLPattern); err != nil {
		return fmt.Errorf("selector catalogue: login.final_url_pattern: %w", err)
	}
	for i := range c.Navigation {
		hop := &c.Navigation[i]
		if len(hop.Selectors) == 0 || hop.URLPattern == "" {
			return fmt.Errorf("selector catalogue: navigation hop %q needs selectors and url_pattern", hop.Name)
		}
		if hop.urlRe, err = regexp.Compile(hop.URLPattern); err != nil {
			return fmt.Errorf("selector catalogue: navigation hop %q: %w", hop.Name, err)
		}
	}
	return nil
}

func compileOptional(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// SalonByID returns the exact-id selector for a salon link
func (c *Catalogue) SalonByID(salonID string) string {
	return fmt.Sprintf(c.Salon.ByID, cssEscape(salonID))
}

// SalonByHref returns the href-substring selector for a salon link
func (c *Catalogue) SalonByHref(salonID string) string {
	return fmt.Sprintf(c.Salon.ByHref, cssEscape(salonID))
}

// cssEscape makes a value safe inside a single-quoted attribute selector
func cssEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
