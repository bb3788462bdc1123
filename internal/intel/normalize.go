package intel

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Normalize returns the canonical stored form of an indicator value, so a
// lookup matches whatever spelling the indicator was blocked with.
func Normalize(indicatorType, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty %s indicator", indicatorType)
	}

	switch indicatorType {
	case domain.IndicatorDomain:
		host, err := idna.Lookup.ToASCII(strings.TrimSuffix(strings.ToLower(value), "."))
		if err != nil {
			return "", fmt.Errorf("invalid domain %q: %w", value, err)
		}
		return host, nil

	case domain.IndicatorEmail:
		if addr, err := mail.ParseAddress(value); err == nil {
			return strings.ToLower(addr.Address), nil
		}
		return strings.ToLower(value), nil

	case domain.IndicatorPhone:
		return strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '(', ')', '.':
				return -1
			}
			if r >= 'a' && r <= 'z' {
				return r - 'a' + 'A'
			}
			return r
		}, value), nil

	case domain.IndicatorURL:
		if !strings.Contains(value, "://") {
			value = "http://" + value
		}
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return value, nil
		}
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Fragment, u.RawFragment = "", ""
		if u.Path == "/" {
			u.Path = ""
		}
		return u.String(), nil
	}

	return "", fmt.Errorf("unknown indicator type %q", indicatorType)
}
