package sources

import "testing"

func TestCanonicalURL_StripsTrackingAndNormalizes(t *testing.T) {
	t.Parallel()

	canonical, host := CanonicalURL("https://WWW.Ynet.co.il:443/news/article/?utm_source=abc&fbclid=123&b=2&a=1#top")
	if canonical != "https://www.ynet.co.il/news/article?a=1&b=2" {
		t.Fatalf("unexpected canonical url: %q", canonical)
	}
	if host != "www.ynet.co.il" {
		t.Fatalf("unexpected host: %q", host)
	}
}

func TestCanonicalURL_PreservesPercentEncodedPath(t *testing.T) {
	t.Parallel()

	const raw = "https://he.wikipedia.org/wiki/%D7%97%D7%95%D7%A7_%D7%94%D7%9C%D7%90%D7%95%D7%9D"
	canonical, host := CanonicalURL(raw)
	if canonical != raw {
		t.Fatalf("canonical URL changed path encoding: %q", canonical)
	}
	if host != "he.wikipedia.org" {
		t.Fatalf("unexpected host: %q", host)
	}

	again, _ := CanonicalURL(canonical)
	if again != canonical {
		t.Fatalf("canonical URL is not stable: %q then %q", canonical, again)
	}

	trimmed, _ := CanonicalURL("https://www.ynet.co.il//articles/%D7%97%2Fx/?utm_medium=social")
	if trimmed != "https://www.ynet.co.il/articles/%D7%97%2Fx" {
		t.Fatalf("unexpected normalised encoded path: %q", trimmed)
	}
}

func TestCanonicalURL_ShareMarkersOnlyStrippedForTwitter(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://x.com/someone/status/1?s=20&t=abc":        "https://x.com/someone/status/1",
		"https://mobile.twitter.com/someone/status/1?s=46": "https://mobile.twitter.com/someone/status/1",
		"https://www.example.co.il/?s=123":                 "https://www.example.co.il/?s=123",
		"https://www.maariv.co.il/news?s=%D7%97&t=2":       "https://www.maariv.co.il/news?s=%D7%97&t=2",
	}
	for raw, want := range cases {
		if got, _ := CanonicalURL(raw); got != want {
			t.Fatalf("CanonicalURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestCanonicalURL_Invalid(t *testing.T) {
	t.Parallel()

	canonical, host := CanonicalURL("not a url")
	if canonical != "" || host != "" {
		t.Fatalf("expected empty result for invalid URL, got canonical=%q host=%q", canonical, host)
	}
}

func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"main.knesset.gov.il": PlatformKnesset,
		"www.gov.il":          PlatformGov,
		"x.com":               PlatformTwitter,
		"mobile.twitter.com":  PlatformTwitter,
		"www.facebook.com":    PlatformFacebook,
		"youtu.be":            PlatformYouTube,
		"t.me":                PlatformTelegram,
		"www.haaretz.co.il":   PlatformNews,
		"example.org":         PlatformOther,
		"notx.com":            PlatformOther,
		"":                    PlatformOther,
	}
	for host, want := range cases {
		if got := DetectPlatform(host); got != want {
			t.Fatalf("DetectPlatform(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestResolveCredibility(t *testing.T) {
	t.Parallel()

	if got := ResolveCredibility(nil, PlatformKnesset); got != MaxCredibility {
		t.Fatalf("expected registry source to default to max credibility, got %d", got)
	}
	if got := ResolveCredibility(nil, " Twitter "); got != 5 {
		t.Fatalf("expected social default 5, got %d", got)
	}
	if got := ResolveCredibility(nil, "unknown-platform"); got != DefaultCredibility {
		t.Fatalf("expected fallback credibility, got %d", got)
	}

	supplied := 2
	if got := ResolveCredibility(&supplied, PlatformKnesset); got != 2 {
		t.Fatalf("expected supplied credibility to win, got %d", got)
	}
}

func TestValidCredibilityBounds(t *testing.T) {
	t.Parallel()

	if ValidCredibility(0) || ValidCredibility(11) {
		t.Fatalf("expected values outside 1..10 to be invalid")
	}
	if !ValidCredibility(1) || !ValidCredibility(10) {
		t.Fatalf("expected bounds to be valid")
	}
}
