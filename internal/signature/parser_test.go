package signature

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

const sampleSignature = `
<html><body>
  <table>
    <tr><td>
      Jo Smith<br/>
      Head of Sales, Acme Corp
    </td></tr>
    <tr><td>
      <a href="https://acme.test/?utm_source=email&utm_campaign=spring_sale">
        <img src="https://cdn.acme.test/banners/spring.png" width="400" height="100"/>
      </a>
    </td></tr>
    <tr><td>
      <a href="https://acme.test/pricing?utm_campaign=spring_sale">Pricing</a>
      <a href="https://acme.test/blog?utm_campaign=newsletter">Blog</a>
      <a href="https://linkedin.test/company/acme">LinkedIn</a>
      <a href="#top">Back to top</a>
    </td></tr>
  </table>
  <img src="https://track.acme.test/pixel?sig=abc" width="1" height="1"/>
</body></html>`

func TestParseSignature(t *testing.T) {
	p := NewParser(5000, 0, zap.NewNop())

	stats, err := p.Parse(sampleSignature)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(stats.Links) != 4 {
		t.Fatalf("got %d links, want 4 (anchor-only href skipped)", len(stats.Links))
	}
	if stats.CampaignCounts["spring_sale"] != 2 {
		t.Errorf("spring_sale count = %d, want 2", stats.CampaignCounts["spring_sale"])
	}
	if stats.CampaignCounts["newsletter"] != 1 {
		t.Errorf("newsletter count = %d, want 1", stats.CampaignCounts["newsletter"])
	}
	if stats.BannerURL != "https://cdn.acme.test/banners/spring.png" {
		t.Errorf("banner url = %q", stats.BannerURL)
	}
	if stats.TrackingPixelURL != "https://track.acme.test/pixel?sig=abc" {
		t.Errorf("tracking pixel url = %q", stats.TrackingPixelURL)
	}
	if stats.ImageCount != 2 {
		t.Errorf("image count = %d, want 2", stats.ImageCount)
	}
	if stats.WordCount == 0 {
		t.Error("word count should not be zero")
	}

	var linkedin *LinkStat
	for i := range stats.Links {
		if stats.Links[i].Host == "linkedin.test" {
			linkedin = &stats.Links[i]
		}
	}
	if linkedin == nil {
		t.Fatal("linkedin link missing")
	}
	if linkedin.Campaign != "" {
		t.Errorf("untagged link has campaign %q", linkedin.Campaign)
	}
	if linkedin.Text != "LinkedIn" {
		t.Errorf("link text = %q", linkedin.Text)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	p := NewParser(5000, 0, zap.NewNop())

	stats, err := p.Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(stats.Links) != 0 || stats.BannerURL != "" || stats.ImageCount != 0 {
		t.Errorf("unexpected stats for empty document: %+v", stats)
	}
}

func TestVerifyBanner(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		p := NewParser(5000, 0, zap.NewNop())
		ok, err := p.VerifyBanner(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("VerifyBanner: %v", err)
		}
		if !ok {
			t.Error("live banner reported dead")
		}
	})

	t.Run("gone", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		p := NewParser(5000, 0, zap.NewNop())
		ok, err := p.VerifyBanner(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("VerifyBanner: %v", err)
		}
		if ok {
			t.Error("missing banner reported live")
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		p := NewParser(5000, 3, zap.NewNop())
		ok, err := p.VerifyBanner(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("VerifyBanner: %v", err)
		}
		if !ok {
			t.Error("banner should be live after retries")
		}
		if calls != 3 {
			t.Errorf("made %d calls, want 3", calls)
		}
	})
}
