package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/httpclient"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

var (
	stylistIDPattern = regexp.MustCompile(`/stylist/([^/]+)/`)
	pagePattern      = regexp.MustCompile(`(\d+)/(\d+)ページ`)

	paginationSelectors = []string{
		".preListHead div.fs10",
		"#mainContents div.pa.bottom0.right0",
	}

	// First selector with any match wins
	couponSelectors = []string{
		"p.couponMenuName:not(.fl)",
		"div.mT5.b > p.couponMenuName",
		".bgLightOrange p.couponMenuName",
	}
	couponContainers = "#mainContents > div.bgLightOrange, #mainContents > div.mT20 > div.bgLightOrange"

	invalidCouponNames = []*regexp.Regexp{
		regexp.MustCompile(`^次へ$`),
		regexp.MustCompile(`^前へ$`),
		regexp.MustCompile(`^\d+$`),
		regexp.MustCompile(`^次の\d+件$`),
		regexp.MustCompile(`^前の\d+件$`),
		regexp.MustCompile(`^\d+/\d+ページ$`),
		regexp.MustCompile(`^クーポンメニュー$`),
		regexp.MustCompile(`^初来店時クーポン$`),
		regexp.MustCompile(`^2回目以降クーポン$`),
		regexp.MustCompile(`^メニュー$`),
	}
)

// ErrInvalidSalonURL is returned for URLs that are not absolute http(s) URLs
var ErrInvalidSalonURL = errors.New("invalid salon URL")

// Scraper reads stylist and coupon listings from Hot Pepper Beauty salon pages.
// Results are cached per salon URL.
type Scraper struct {
	client   *http.Client
	cache    interfaces.CacheStorage
	cacheTTL time.Duration
	maxPages int
	logger   arbor.ILogger
}

// NewScraper creates a scraper; cache may be nil
func NewScraper(config *common.ScraperConfig, cache interfaces.CacheStorage, logger arbor.ILogger) *Scraper {
	maxPages := config.MaxCouponPages
	if maxPages <= 0 {
		maxPages = 10
	}
	timeout := common.ParseDuration(config.RequestTimeout, 30*time.Second)
	client, err := httpclient.NewBrowserClient(timeout, config.UserAgent, "ja,en-US;q=0.7,en;q=0.3")
	if err != nil {
		logger.Warn().Err(err).Msg("Scraper falling back to a client without cookies")
		client = httpclient.NewDefaultHTTPClient(timeout)
	}
	return &Scraper{
		client:   client,
		cache:    cache,
		cacheTTL: common.ParseDuration(config.CacheTTL, 6*time.Hour),
		maxPages: maxPages,
		logger:   logger,
	}
}

// Stylists returns the salon's stylists in page order without duplicates
func (s *Scraper) Stylists(ctx context.Context, salonURL string) ([]models.Stylist, error) {
	base, err := normalizeSalonURL(salonURL)
	if err != nil {
		return nil, err
	}

	cacheKey := "hpb:stylists:" + base
	var stylists []models.Stylist
	if s.cached(ctx, cacheKey, &stylists) {
		return stylists, nil
	}

	doc, err := s.fetch(ctx, base+"stylist/")
	if err != nil {
		return nil, fmt.Errorf("stylist scraping failed: %w", err)
	}
	stylists = extractStylists(doc)

	s.logger.Info().Str("salon_url", base).Int("count", len(stylists)).Msg("Stylists scraped")
	s.store(ctx, cacheKey, stylists)
	return stylists, nil
}

// Coupons returns coupon names across every listing page without duplicates
func (s *Scraper) Coupons(ctx context.Context, salonURL string) ([]string, error) {
	base, err := normalizeSalonURL(salonURL)
	if err != nil {
		return nil, err
	}

	cacheKey := "hpb:coupons:" + base
	var coupons []string
	if s.cached(ctx, cacheKey, &coupons) {
		return coupons, nil
	}

	couponURL := base + "coupon/"
	doc, err := s.fetch(ctx, couponURL)
	if err != nil {
		return nil, fmt.Errorf("coupon scraping failed: %w", err)
	}

	totalPages := min(totalPages(doc), s.maxPages)
	seen := make(map[string]bool)
	coupons = []string{}
	collect := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				coupons = append(coupons, name)
			}
		}
	}
	collect(extractCoupons(doc))

	for page := 2; page <= totalPages; page++ {
		doc, err := s.fetch(ctx, fmt.Sprintf("%sPN%d.html", couponURL, page))
		if err != nil {
			// Keep what the earlier pages gave
			s.logger.Warn().Err(err).Int("page", page).Msg("Failed to fetch coupon page")
			break
		}
		collect(extractCoupons(doc))
	}

	s.logger.Info().
		Str("salon_url", base).
		Int("pages", totalPages).
		Int("count", len(coupons)).
		Msg("Coupons scraped")
	s.store(ctx, cacheKey, coupons)
	return coupons, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", pageURL, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (s *Scraper) cached(ctx context.Context, key string, out interface{}) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return false
	}
	s.logger.Debug().Str("key", key).Msg("Scraper cache hit")
	return true
}

func (s *Scraper) store(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache scrape result")
	}
}

// normalizeSalonURL returns the salon URL with exactly one trailing slash
func normalizeSalonURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSalonURL, raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/") + "/", nil
}

func extractStylists(doc *goquery.Document) []models.Stylist {
	stylists := []models.Stylist{}
	seen := make(map[string]bool)
	add := func(id, name string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if name == "" {
			name = "スタイリスト " + id
		}
		stylists = append(stylists, models.Stylist{StylistID: id, Name: name})
	}

	// Name links sit directly inside <p>
	doc.Find("p > a[href]").Each(func(_ int, a *goquery.Selection) {
		if id := stylistID(a); id != "" {
			add(id, cleanText(a.Text()))
		}
	})

	// Stylists listed only in tables
	doc.Find("table tr td a[href]").Each(func(_ int, a *goquery.Selection) {
		id := stylistID(a)
		if id == "" {
			return
		}
		name := cleanText(a.Text())
		if name == "" {
			name = cleanText(a.Parent().Text())
		}
		add(id, name)
	})
	return stylists
}

func stylistID(a *goquery.Selection) string {
	href, _ := a.Attr("href")
	if m := stylistIDPattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

func totalPages(doc *goquery.Document) int {
	var text string
	for _, selector := range paginationSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			text = sel.Text()
			break
		}
	}
	if !pagePattern.MatchString(text) {
		text = doc.Find("body").Text()
	}
	if m := pagePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func extractCoupons(doc *goquery.Document) []string {
	var names []string
	collect := func(sel *goquery.Selection) {
		sel.Each(func(_ int, p *goquery.Selection) {
			if name := cleanText(p.Text()); validCouponName(name) {
				names = append(names, name)
			}
		})
	}

	for _, selector := range couponSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			collect(sel)
			break
		}
	}
	if len(names) == 0 {
		collect(doc.Find(couponContainers).Find("p.couponMenuName"))
	}
	return names
}

func validCouponName(name string) bool {
	if n := len([]rune(name)); n < 2 || n > 200 {
		return false
	}
	for _, pattern := range invalidCouponNames {
		if pattern.MatchString(name) {
			return false
		}
	}
	return true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
