package review

import (
	"net/url"
	"regexp"
	"strings"

	"contentmill/internal/domain/entity"
)

// paywallDomains hosts articles that cannot be fetched in full without a
// subscription. Matching is by registered host suffix.
var paywallDomains = []string{
	"wsj.com",
	"ft.com",
	"bloomberg.com",
	"economist.com",
	"nytimes.com",
}

// paywallPhrases are body markers left behind by paywall interstitials.
var paywallPhrases = []string{
	"subscribe to read",
	"subscription required",
}

var (
	comparisonPattern = regexp.MustCompile(`(?i)\bvs\.?\b|\bversus\b`)
	listiclePattern   = regexp.MustCompile(`(?i)^\d+\s+(best|top|ways|reasons|things)\b|\btop\s+\d+\b`)
)

// IsPaywalled reports whether the item links to a known paywalled domain
// or carries a paywall marker in its body.
func IsPaywalled(item *entity.StandardItem) bool {
	for _, raw := range []string{item.MetaString(entity.MetaSourceURL), item.URL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		for _, domain := range paywallDomains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return true
			}
		}
	}

	content := strings.ToLower(item.Content)
	for _, phrase := range paywallPhrases {
		if strings.Contains(content, phrase) {
			return true
		}
	}
	return false
}

// IsComparison reports whether the title is a head-to-head comparison
// ("X vs Y"), which rarely expands into a standalone article.
func IsComparison(title string) bool {
	return comparisonPattern.MatchString(title)
}

// IsListicle reports whether the title follows a listicle pattern such as
// "10 best ..." or "Top 5 ...".
func IsListicle(title string) bool {
	return listiclePattern.MatchString(title)
}
