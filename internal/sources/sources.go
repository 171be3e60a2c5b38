package sources

import (
	"net/url"
	"sort"
	"strings"
)

const (
	PlatformKnesset   = "knesset"
	PlatformGov       = "gov"
	PlatformNews      = "news"
	PlatformYouTube   = "youtube"
	PlatformTwitter   = "twitter"
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTelegram  = "telegram"
	PlatformTikTok    = "tiktok"
	PlatformOther     = "other"

	TypePrimary   = "Primary"
	TypeSecondary = "Secondary"

	MinCredibility     = 1
	MaxCredibility     = 10
	DefaultCredibility = 5
)

var credibilityByPlatform = map[string]int{
	PlatformKnesset:   MaxCredibility,
	PlatformGov:       9,
	PlatformNews:      7,
	PlatformYouTube:   6,
	PlatformTwitter:   5,
	PlatformFacebook:  5,
	PlatformTelegram:  4,
	PlatformInstagram: 4,
	PlatformTikTok:    3,
	PlatformOther:     DefaultCredibility,
}

var platformHosts = []struct {
	suffix   string
	platform string
}{
	{suffix: "knesset.gov.il", platform: PlatformKnesset},
	{suffix: "gov.il", platform: PlatformGov},
	{suffix: "youtube.com", platform: PlatformYouTube},
	{suffix: "youtu.be", platform: PlatformYouTube},
	{suffix: "twitter.com", platform: PlatformTwitter},
	{suffix: "x.com", platform: PlatformTwitter},
	{suffix: "facebook.com", platform: PlatformFacebook},
	{suffix: "fb.watch", platform: PlatformFacebook},
	{suffix: "instagram.com", platform: PlatformInstagram},
	{suffix: "t.me", platform: PlatformTelegram},
	{suffix: "tiktok.com", platform: PlatformTikTok},
	{suffix: "ynet.co.il", platform: PlatformNews},
	{suffix: "haaretz.co.il", platform: PlatformNews},
	{suffix: "maariv.co.il", platform: PlatformNews},
	{suffix: "kan.org.il", platform: PlatformNews},
	{suffix: "mako.co.il", platform: PlatformNews},
	{suffix: "israelhayom.co.il", platform: PlatformNews},
	{suffix: "timesofisrael.com", platform: PlatformNews},
	{suffix: "jpost.com", platform: PlatformNews},
}

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"si":      {},
}

// twitterQueryKeys are share markers that only carry tracking meaning on
// twitter.com and x.com. Elsewhere "s" is commonly a search term or article id.
var twitterQueryKeys = map[string]struct{}{
	"s": {},
	"t": {},
}

// DefaultCredibilityFor returns the credibility tier used when a submission does
// not carry its own.
func DefaultCredibilityFor(platform string) int {
	if v, ok := credibilityByPlatform[NormalizePlatform(platform)]; ok {
		return v
	}
	return DefaultCredibility
}

// ResolveCredibility prefers the caller's value and falls back to the
// platform default.
func ResolveCredibility(supplied *int, platform string) int {
	if supplied != nil {
		return *supplied
	}
	return DefaultCredibilityFor(platform)
}

func ValidCredibility(value int) bool {
	return value >= MinCredibility && value <= MaxCredibility
}

func NormalizePlatform(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw))
}

func KnownPlatform(platform string) bool {
	_, ok := credibilityByPlatform[NormalizePlatform(platform)]
	return ok
}

func ValidSourceType(value string) bool {
	return value == TypePrimary || value == TypeSecondary
}

// DetectPlatform maps a source host onto a platform name. Unknown hosts map
// to PlatformOther.
func DetectPlatform(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	if host == "" {
		return PlatformOther
	}
	for _, entry := range platformHosts {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return entry.platform
		}
	}
	return PlatformOther
}

// CanonicalURL lowercases scheme and host, drops default ports, fragments and
// tracking parameters, and sorts the remaining query. It returns empty values
// when raw is not an absolute URL.
func CanonicalURL(raw string) (canonical string, host string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ""
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = parsed.Host + ":" + port
		}
	}

	parsed.Fragment = ""
	// Normalise the escaped form and keep RawPath in step with Path so String()
	// reuses the original percent-encoding instead of escaping it again.
	escapedPath := strings.TrimSpace(parsed.EscapedPath())
	if escapedPath == "" {
		escapedPath = "/"
	}
	for strings.Contains(escapedPath, "//") {
		escapedPath = strings.ReplaceAll(escapedPath, "//", "/")
	}
	if strings.HasSuffix(escapedPath, "/") && escapedPath != "/" {
		escapedPath = strings.TrimSuffix(escapedPath, "/")
	}
	unescapedPath, err := url.PathUnescape(escapedPath)
	if err != nil {
		return "", ""
	}
	parsed.Path = unescapedPath
	parsed.RawPath = escapedPath

	twitterHost := DetectPlatform(parsed.Hostname()) == PlatformTwitter

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
			continue
		}
		if _, ok := twitterQueryKeys[lower]; ok && twitterHost {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String(), parsed.Hostname()
}
