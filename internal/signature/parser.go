package signature

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

type LinkStat struct {
	URL      string `json:"url"`
	Text     string `json:"text,omitempty"`
	Host     string `json:"host,omitempty"`
	Campaign string `json:"campaign,omitempty"`
}

type SignatureStats struct {
	Links            []LinkStat     `json:"links"`
	CampaignCounts   map[string]int `json:"campaign_counts,omitempty"`
	BannerURL        string         `json:"banner_url,omitempty"`
	TrackingPixelURL string         `json:"tracking_pixel_url,omitempty"`
	ImageCount       int            `json:"image_count"`
	WordCount        int            `json:"word_count"`
	ParsedAt         time.Time      `json:"parsed_at"`
}

type Parser struct {
	httpClient *http.Client
	log        *zap.Logger
	maxRetries int
}

func NewParser(timeoutMS, maxRetries int, log *zap.Logger) *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		log:        log,
		maxRetries: maxRetries,
	}
}

// Parse extracts campaign analytics from a rendered signature HTML document.
func (p *Parser) Parse(html string) (*SignatureStats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	stats := &SignatureStats{
		CampaignCounts: make(map[string]int),
		ParsedAt:       time.Now(),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		link := LinkStat{
			URL:  href,
			Text: strings.TrimSpace(s.Text()),
		}
		if u, err := url.Parse(href); err == nil {
			link.Host = u.Host
			link.Campaign = u.Query().Get("utm_campaign")
		}
		if link.Campaign != "" {
			stats.CampaignCounts[link.Campaign]++
		}
		stats.Links = append(stats.Links, link)
	})

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		stats.ImageCount++

		if isTrackingPixel(s) {
			if stats.TrackingPixelURL == "" {
				stats.TrackingPixelURL = src
			}
			return
		}

		// The banner is the first real image wrapped in a campaign link.
		if stats.BannerURL == "" && s.ParentsFiltered("a[href]").Length() > 0 {
			stats.BannerURL = src
		}
	})

	stats.WordCount = countWords(doc.Text())
	return stats, nil
}

// VerifyBanner checks that a hosted banner URL still serves content. Transient
// errors are retried with a short linear backoff, like the upstream fetchers.
func (p *Parser) VerifyBanner(ctx context.Context, bannerURL string) (bool, error) {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, bannerURL, nil)
		if err != nil {
			return false, err
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return true, nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return false, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, bannerURL)
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		default:
			return false, fmt.Errorf("HTTP %d for %s", resp.StatusCode, bannerURL)
		}
	}

	return false, lastErr
}

// isTrackingPixel recognizes 1x1 images and images explicitly flagged as
// pixels, the two shapes signature renderers emit.
func isTrackingPixel(s *goquery.Selection) bool {
	w, _ := s.Attr("width")
	h, _ := s.Attr("height")
	if w == "1" && h == "1" {
		return true
	}
	if cls, ok := s.Attr("class"); ok && strings.Contains(strings.ToLower(cls), "pixel") {
		return true
	}
	if src, ok := s.Attr("src"); ok && strings.Contains(strings.ToLower(src), "/pixel") {
		return true
	}
	return false
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
