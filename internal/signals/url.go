package signals

import (
	"context"
	"errors"
	"net"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// URLExtractor extracts phishing signals from a single URL.
type URLExtractor struct {
	lookups      Lookups
	pathKeywords []string
	highRisk     []string
	mediumRisk   []string
	shorteners   []string
	brands       []string
}

// NewURLExtractor builds a URL extractor from a weight configuration.
func NewURLExtractor(cfg domain.WeightConfig, lookups Lookups) *URLExtractor {
	ex := cfg.Extraction
	return &URLExtractor{
		lookups:      lookups,
		pathKeywords: keywordsFor(cfg, domain.ChannelURL, domain.SignalSuspiciousPathKeywords),
		highRisk:     lowerAll(ex.HighRiskTLDs),
		mediumRisk:   lowerAll(ex.MediumRiskTLDs),
		shorteners:   lowerAll(ex.URLShorteners),
		brands:       lowerAll(ex.ProtectedBrands),
	}
}

// Channel implements Extractor.
func (x *URLExtractor) Channel() domain.Channel {
	return domain.ChannelURL
}

// Extract implements Extractor.
func (x *URLExtractor) Extract(ctx context.Context, in domain.RawInput) []domain.Signal {
	raw := strings.TrimSpace(in.Text)
	if raw == "" {
		return nil
	}

	u, err := parseURL(raw)
	if err != nil {
		return []domain.Signal{failedSignal(domain.SignalDomain, err.Error())}
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	var sigs []domain.Signal

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		sigs = append(sigs, failedSignal(domain.SignalDomain, "invalid host: "+err.Error()))
		ascii = host
	} else {
		sigs = append(sigs, textSignal(domain.SignalDomain, ascii))
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii)
	if err != nil {
		registrable = ascii
	}

	sigs = append(sigs,
		x.lookups.domainAge(ctx, registrable),
		countSignal(domain.SignalRedirectCount, x.redirects(u, ascii)),
		x.punycode(host, ascii),
		x.tldClass(ascii),
		x.lookalike(ascii, registrable),
		countSignal(domain.SignalSuspiciousPathKeywords,
			matchKeywords(strings.Join([]string{registrableLabel(registrable), u.Path, u.RawQuery}, " "), x.pathKeywords)),
	)

	if sig, ok := x.lookups.reputation(ctx, domain.SignalDomainReputation, domain.IndicatorDomain, ascii); ok {
		sigs = append(sigs, sig)
	}
	if sig, ok := x.lookups.reputation(ctx, domain.SignalURLReputation, domain.IndicatorURL, urlKey(u, ascii)); ok {
		sigs = append(sigs, sig)
	}
	return sigs
}

// urlKey renders u the way URL indicators are stored: ASCII host and no fragment.
func urlKey(u *url.URL, ascii string) string {
	k := *u
	k.Fragment, k.RawFragment = "", ""
	if h := u.Hostname(); h != ascii && net.ParseIP(h) == nil {
		k.Host = ascii
		if port := u.Port(); port != "" {
			k.Host = net.JoinHostPort(ascii, port)
		}
	}
	return k.String()
}

// registrableLabel strips the public suffix, leaving the part of the name
// the registrant chose. Subdomains such as secure. or accounts. are left out.
func registrableLabel(registrable string) string {
	suffix, _ := publicsuffix.PublicSuffix(registrable)
	return strings.TrimSuffix(registrable, "."+suffix)
}

func parseURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, errNoHost
	}
	return u, nil
}

var errNoHost = errors.New("missing host")

// redirects lists the hops a URL hides: shortener hosts, userinfo tricks
// and redirect targets embedded in query values.
func (x *URLExtractor) redirects(u *url.URL, host string) []string {
	var hops []string
	if slices.Contains(x.shorteners, host) {
		hops = append(hops, "shortened via "+host)
	}
	if u.User != nil {
		hops = append(hops, "credentials prefix before "+host)
	}

	// url.Values is a map; walk the raw query to keep parameter order.
	for _, pair := range strings.Split(u.RawQuery, "&") {
		_, value, _ := strings.Cut(pair, "=")
		value, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		lower := strings.ToLower(value)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		target, err := url.Parse(value)
		if err != nil || target.Hostname() == "" {
			continue
		}
		hops = append(hops, "redirects to "+strings.ToLower(target.Hostname()))
	}
	return hops
}

func (x *URLExtractor) punycode(host, ascii string) domain.Signal {
	idn := utf8.RuneCountInString(host) != len(host)
	for _, label := range strings.Split(ascii, ".") {
		if strings.HasPrefix(label, "xn--") {
			idn = true
			break
		}
	}
	if !idn {
		return flagSignal(domain.SignalIsPunycode, false, "")
	}
	display, err := idna.Display.ToUnicode(ascii)
	if err != nil {
		display = ascii
	}
	return flagSignal(domain.SignalIsPunycode, true, display)
}

func (x *URLExtractor) tldClass(ascii string) domain.Signal {
	sig := domain.Signal{Name: domain.SignalTLDRiskClass, Kind: domain.KindClass, Class: "low"}
	if net.ParseIP(ascii) != nil {
		return sig
	}

	suffix, _ := publicsuffix.PublicSuffix(ascii)
	last := suffix
	if i := strings.LastIndex(suffix, "."); i >= 0 {
		last = suffix[i+1:]
	}
	sig.Text = "." + suffix

	switch {
	case slices.Contains(x.highRisk, suffix), slices.Contains(x.highRisk, last):
		sig.Class = "high"
	case slices.Contains(x.mediumRisk, suffix), slices.Contains(x.mediumRisk, last):
		sig.Class = "medium"
	}
	return sig
}

func (x *URLExtractor) lookalike(ascii, registrable string) domain.Signal {
	if net.ParseIP(ascii) != nil {
		return flagSignal(domain.SignalBrandLookalike, false, "")
	}

	label := registrableLabel(registrable)
	if display, err := idna.Display.ToUnicode(label); err == nil {
		label = display
	}

	// subdomains can carry the brand too, e.g. paypal.com.account-check.tk
	candidates := []string{label}
	if sub := strings.TrimSuffix(ascii, registrable); sub != "" {
		candidates = append(candidates, strings.Trim(sub, "."))
	}

	for _, c := range candidates {
		if brand := lookalikeBrand(c, x.brands); brand != "" {
			return flagSignal(domain.SignalBrandLookalike, true, brand)
		}
	}
	return flagSignal(domain.SignalBrandLookalike, false, "")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimPrefix(s, ".")))
	}
	return out
}
