package signals

import (
	"regexp"
	"slices"
	"strings"
)

// matchKeywords returns the keywords contained in text, in list order.
// Matching is a case-insensitive substring test; each keyword counts once.
func matchKeywords(text string, keywords []string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var hits []string
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" || slices.Contains(hits, kw) {
			continue
		}
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// findURLs returns every http(s) URL in text in order of appearance.
// Duplicates are kept.
func findURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// findLinks returns http(s) URLs plus bare links matched by shorteners,
// in order of appearance.
func findLinks(text string, shorteners *regexp.Regexp) []string {
	type match struct {
		start int
		value string
	}

	var found []match
	var covered [][]int
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		found = append(found, match{start: loc[0], value: text[loc[0]:loc[1]]})
		covered = append(covered, loc)
	}

	if shorteners != nil {
		for _, loc := range shorteners.FindAllStringIndex(text, -1) {
			inside := false
			for _, c := range covered {
				if loc[0] >= c[0] && loc[0] < c[1] {
					inside = true
					break
				}
			}
			if !inside {
				found = append(found, match{start: loc[0], value: text[loc[0]:loc[1]]})
			}
		}
	}

	slices.SortStableFunc(found, func(a, b match) int { return a.start - b.start })

	links := make([]string, 0, len(found))
	for _, m := range found {
		links = append(links, m.value)
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func shortenerPattern(shorteners []string) *regexp.Regexp {
	if len(shorteners) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(shorteners))
	for _, s := range shorteners {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(s)))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)(?:/[^\s]*)?`)
}
