package signals

import (
	"context"
	"reflect"
	"testing"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

func find(t *testing.T, sigs []domain.Signal, name string) domain.Signal {
	t.Helper()
	for _, s := range sigs {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("signal %q not emitted; got %+v", name, sigs)
	return domain.Signal{}
}

// lookupRecorder answers every reputation lookup with a miss and keeps
// the queries it was asked.
type lookupRecorder struct {
	queries []string
}

func (r *lookupRecorder) Lookup(_ context.Context, indicatorType, value string) (domain.LookupResult, error) {
	r.queries = append(r.queries, indicatorType+":"+value)
	return domain.LookupResult{}, nil
}

func names(sigs []domain.Signal) []string {
	out := make([]string, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Name)
	}
	return out
}

func TestMatchKeywords(t *testing.T) {
	keywords := []string{"urgent", "verify", "act now", "verify"}

	tests := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"nothing here", nil},
		{"VERIFY now, it is URGENT", []string{"urgent", "verify"}},
		{"Act Now!", []string{"act now"}},
	}

	for _, tt := range tests {
		got := matchKeywords(tt.text, keywords)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("matchKeywords(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFindLinks(t *testing.T) {
	re := shortenerPattern([]string{"bit.ly", "tinyurl.com"})
	text := "go to tinyurl.com/abc then https://bit.ly/x and https://example.com/a https://example.com/a"

	got := findLinks(text, re)
	want := []string{"tinyurl.com/abc", "https://bit.ly/x", "https://example.com/a", "https://example.com/a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("findLinks = %v, want %v", got, want)
	}

	if links := findLinks("no links at all", re); links != nil {
		t.Errorf("expected nil, got %v", links)
	}
}

func TestLookalikeBrand(t *testing.T) {
	brands := scoring.DefaultWeightConfig().Extraction.ProtectedBrands

	tests := []struct {
		label string
		want  string
	}{
		{"paypal", ""},
		{"paypa1", "paypal"},
		{"paypa1-secure-login", "paypal"},
		{"pаypal", "paypal"}, // Cyrillic a
		{"g00gle", "google"},
		{"arnazon", "amazon"},
		{"micros0ft-support", "microsoft"},
		{"amazon-refunds", "amazon"},
		{"netflx", "netflix"},
		{"example", ""},
		{"weather", ""},
	}

	for _, tt := range tests {
		if got := lookalikeBrand(tt.label, brands); got != tt.want {
			t.Errorf("lookalikeBrand(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"paypal", "paypal", 0},
		{"paypal", "paypa", 1},
		{"kitten", "sitting", 3},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestURLExtractor(t *testing.T) {
	x := NewURLExtractor(scoring.DefaultWeightConfig(), Lookups{})
	ctx := context.Background()

	t.Run("emission order", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("https://example.com"))
		want := []string{
			domain.SignalDomain,
			domain.SignalDomainAgeDays,
			domain.SignalRedirectCount,
			domain.SignalIsPunycode,
			domain.SignalTLDRiskClass,
			domain.SignalBrandLookalike,
			domain.SignalSuspiciousPathKeywords,
		}
		if got := names(sigs); !reflect.DeepEqual(got, want) {
			t.Errorf("signals = %v, want %v", got, want)
		}
	})

	t.Run("missing scheme", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("paypa1-secure-login.tk/verify"))
		if d := find(t, sigs, domain.SignalDomain); d.Text != "paypa1-secure-login.tk" {
			t.Errorf("domain = %q", d.Text)
		}
	})

	t.Run("redirects", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("https://user@bit.ly/abc?u=https%3A%2F%2Fevil.tk%2Flogin&x=1"))
		got := find(t, sigs, domain.SignalRedirectCount).Hits
		want := []string{"shortened via bit.ly", "credentials prefix before bit.ly", "redirects to evil.tk"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("redirect hops = %v, want %v", got, want)
		}
	})

	t.Run("punycode", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("https://xn--pypal-4ve.com/"))
		p := find(t, sigs, domain.SignalIsPunycode)
		if !p.Flag {
			t.Error("expected punycode flag")
		}
		if p.Text != "pаypal.com" {
			t.Errorf("display = %q", p.Text)
		}
		if l := find(t, sigs, domain.SignalBrandLookalike); !l.Flag || l.Text != "paypal" {
			t.Errorf("expected paypal lookalike, got %+v", l)
		}
	})

	t.Run("unicode host", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("https://pаypal.com/"))
		if !find(t, sigs, domain.SignalIsPunycode).Flag {
			t.Error("expected punycode flag for unicode host")
		}
		if d := find(t, sigs, domain.SignalDomain); d.Text != "xn--pypal-4ve.com" {
			t.Errorf("domain = %q, want ASCII form", d.Text)
		}
	})

	t.Run("tld classes", func(t *testing.T) {
		for url, want := range map[string]string{
			"http://a.tk":         "high",
			"http://a.info":       "medium",
			"http://a.co.uk":      "low",
			"http://192.168.1.10": "low",
		} {
			sigs := x.Extract(ctx, domain.NewURLInput(url))
			if got := find(t, sigs, domain.SignalTLDRiskClass).Class; got != want {
				t.Errorf("%s: class = %s, want %s", url, got, want)
			}
		}
	})

	t.Run("brand in subdomain", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("http://paypal.com.account-check.tk/"))
		if l := find(t, sigs, domain.SignalBrandLookalike); !l.Flag || l.Text != "paypal" {
			t.Errorf("expected paypal lookalike, got %+v", l)
		}
	})

	t.Run("path keywords skip subdomains", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("https://secure.chase.com/account/login"))
		got := find(t, sigs, domain.SignalSuspiciousPathKeywords).Hits
		if want := []string{"login", "account"}; !reflect.DeepEqual(got, want) {
			t.Errorf("path keyword hits = %v, want %v", got, want)
		}

		sigs = x.Extract(ctx, domain.NewURLInput("http://paypa1-secure-login.tk/verify"))
		got = find(t, sigs, domain.SignalSuspiciousPathKeywords).Hits
		if want := []string{"login", "verify", "secure"}; !reflect.DeepEqual(got, want) {
			t.Errorf("path keyword hits = %v, want %v", got, want)
		}
	})

	t.Run("unparsable", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewURLInput("http://[::1"))
		if len(sigs) != 1 || !sigs[0].Failed || sigs[0].Name != domain.SignalDomain {
			t.Errorf("expected a single failed domain signal, got %+v", sigs)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if sigs := x.Extract(ctx, domain.NewURLInput("   ")); len(sigs) != 0 {
			t.Errorf("expected no signals, got %+v", sigs)
		}
	})
}

func TestURLExtractorReputation(t *testing.T) {
	rec := &lookupRecorder{}
	x := NewURLExtractor(scoring.DefaultWeightConfig(), Lookups{Store: rec})

	sigs := x.Extract(context.Background(), domain.NewURLInput("HTTP://Login.Evil.Example/x?id=7#top"))
	if got := names(sigs)[len(sigs)-2:]; !reflect.DeepEqual(got, []string{domain.SignalDomainReputation, domain.SignalURLReputation}) {
		t.Errorf("trailing signals = %v, want domain then url reputation", got)
	}

	want := []string{
		"domain:login.evil.example",
		"url:http://login.evil.example/x?id=7",
	}
	if !reflect.DeepEqual(rec.queries, want) {
		t.Errorf("lookups = %v, want %v", rec.queries, want)
	}
}

func TestEmailExtractor(t *testing.T) {
	x := NewEmailExtractor(scoring.DefaultWeightConfig(), Lookups{})
	ctx := context.Background()

	t.Run("reply-to to freemail", func(t *testing.T) {
		headers := "From: Bank <alerts@bank.example>\nReply-To: <bank.help@gmail.com>\n"
		sigs := x.Extract(ctx, domain.NewEmailInput("alerts@bank.example", "Hi", "body", headers))
		r := find(t, sigs, domain.SignalReplyToMismatch)
		if !r.Flag || r.Text != "gmail.com" {
			t.Errorf("expected reply-to mismatch to gmail.com, got %+v", r)
		}
	})

	t.Run("reply-to within sender domain", func(t *testing.T) {
		headers := "From: alerts@bank.example\nReply-To: support@bank.example\n"
		sigs := x.Extract(ctx, domain.NewEmailInput("alerts@bank.example", "Hi", "body", headers))
		if find(t, sigs, domain.SignalReplyToMismatch).Flag {
			t.Error("same-domain reply-to should not be flagged")
		}
	})

	t.Run("authentication failures", func(t *testing.T) {
		headers := "Received-SPF: softfail\nAuthentication-Results: mx; spf=softfail; dkim=fail\n"
		sigs := x.Extract(ctx, domain.NewEmailInput("a@b.example", "", "", headers))
		got := find(t, sigs, domain.SignalAuthFailures).Hits
		want := []string{"SPF check failed", "DKIM signature failed"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("auth failures = %v, want %v", got, want)
		}
	})

	t.Run("malformed headers", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewEmailInput("a@b.example", "", "", "this is not a header line"))
		f := find(t, sigs, domain.SignalRawHeaders)
		if !f.Failed || f.Reason == "" {
			t.Errorf("expected failed raw_headers signal, got %+v", f)
		}
	})

	t.Run("embedded urls keep duplicates", func(t *testing.T) {
		sigs := x.Extract(ctx, domain.NewEmailInput("", "", "see https://a.example/x and https://a.example/x", ""))
		if got := find(t, sigs, domain.SignalEmbeddedURLs).Count(); got != 2 {
			t.Errorf("url count = %d, want 2", got)
		}
	})
}

func TestVoiceExtractor(t *testing.T) {
	x := NewVoiceExtractor(scoring.DefaultWeightConfig())
	ctx := context.Background()

	t.Run("tactics in fixed order", func(t *testing.T) {
		in := domain.NewVoiceInput(10, "Keep this confidential. I am an officer and can help, act quickly or we freeze it.", nil, nil)
		got := find(t, x.Extract(ctx, in), domain.SignalSocialEngineeringTactics).Hits
		want := []string{"urgency_creation", "authority_exploitation", "fear_induction", "reciprocity", "secrecy_request"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("tactics = %v, want %v", got, want)
		}
	})

	t.Run("speech rate threshold", func(t *testing.T) {
		for rate, want := range map[float64]bool{150: false, 180: false, 181: true} {
			in := domain.NewVoiceInput(10, "", map[string]any{"speech_rate": rate}, nil)
			flags := find(t, x.Extract(ctx, in), domain.SignalStressFlags).Hits
			got := len(flags) == 1 && flags[0] == domain.StressRapidSpeechRate
			if got != want {
				t.Errorf("rate %v: flagged = %v, want %v", rate, got, want)
			}
		}
	})

	t.Run("integer features", func(t *testing.T) {
		in := domain.NewVoiceInput(10, "", map[string]any{"speech_rate": 200}, nil)
		sigs := x.Extract(ctx, in)
		if len(find(t, sigs, domain.SignalStressFlags).Hits) != 1 {
			t.Error("integer speech rate should be accepted")
		}
	})

	t.Run("mistyped voice analysis", func(t *testing.T) {
		in := domain.NewVoiceInput(10, "", nil, map[string]any{"voice_type": 7})
		f := find(t, x.Extract(ctx, in), domain.SignalVoiceAnalysis)
		if !f.Failed {
			t.Errorf("expected failed voice_analysis signal, got %+v", f)
		}
	})

	t.Run("input maps are copied", func(t *testing.T) {
		features := map[string]any{"has_background_noise": true}
		in := domain.NewVoiceInput(10, "", features, nil)
		features["has_background_noise"] = false

		if len(find(t, x.Extract(ctx, in), domain.SignalStressFlags).Hits) != 1 {
			t.Error("caller mutation leaked into the input")
		}
	})
}

func TestNewUnknownChannel(t *testing.T) {
	if _, err := New("fax", scoring.DefaultWeightConfig(), Lookups{}); err == nil {
		t.Error("expected error for unknown channel")
	}
}
