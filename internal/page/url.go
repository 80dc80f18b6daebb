package page

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var amazonASINPattern = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)

// trackingParams are stripped from every monitored URL so history stays
// keyed on the canonical product page.
var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"msclkid":  true,
	"mc_cid":   true,
	"mc_eid":   true,
	"igshid":   true,
	"ref":      true,
	"ref_":     true,
	"tag":      true,
	"linkCode": true,
	"th":       true,
	"psc":      true,
	"smid":     true,
	"pf_rd_r":  true,
	"pf_rd_p":  true,
}

// SimplifyURL canonicalises a product URL. Amazon URLs collapse to the bare
// /dp/ASIN form; everything else keeps its path but loses tracking params.
func SimplifyURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}

	if strings.Contains(parsed.Host, "amazon.") {
		if match := amazonASINPattern.FindStringSubmatch(parsed.Path); match != nil {
			return fmt.Sprintf("%s://%s/dp/%s", parsed.Scheme, parsed.Host, match[1])
		}
	}

	query := parsed.Query()
	for key := range query {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""
	return parsed.String()
}

// Domain returns the registrable-ish host of a URL, lowercased, without the
// www prefix. Used to key site adapters and per-domain hooks.
func Domain(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
