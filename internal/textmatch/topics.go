package textmatch

import "strings"

// PrimaryKeywords are strong indicators that a quote is about the recruitment
// law debate.
var PrimaryKeywords = []string{
	"חוק הגיוס",
	"חוק גיוס",
	"גיוס חרדים",
	"גיוס בני ישיבות",
	"שוויון בנטל",
	"פטור משירות",
	"recruitment law",
	"draft law",
	"conscription law",
	"haredi draft",
	"equal burden",
	"military exemption",
}

// SecondaryKeywords support a topic match but never satisfy one on their own.
var SecondaryKeywords = []string{
	"שירות צבאי",
	"שירות לאומי",
	"צה\"ל",
	"מילואים",
	"ישיבות",
	"חרדים",
	"military service",
	"national service",
	"idf",
	"reserve duty",
	"yeshiva",
	"ultra-orthodox",
}

// TopicMatch is the result of MatchesTopic.
type TopicMatch struct {
	Matches  bool     `json:"matches"`
	Keywords []string `json:"keywords"`
}

// MatchesTopic reports whether text mentions at least minPrimaryMatches
// distinct primary keywords. Matching is a case-insensitive substring search,
// so a keyword inside a longer word counts. Keywords holds every primary and
// secondary keyword found.
func MatchesTopic(text string, minPrimaryMatches int) TopicMatch {
	if minPrimaryMatches < 1 {
		minPrimaryMatches = 1
	}

	haystack := strings.ToLower(text)
	keywords := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)

	primaryHits := 0
	for _, keyword := range PrimaryKeywords {
		if collectKeyword(haystack, keyword, seen, &keywords) {
			primaryHits++
		}
	}
	for _, keyword := range SecondaryKeywords {
		collectKeyword(haystack, keyword, seen, &keywords)
	}

	return TopicMatch{
		Matches:  primaryHits >= minPrimaryMatches,
		Keywords: keywords,
	}
}

func collectKeyword(haystack, keyword string, seen map[string]struct{}, keywords *[]string) bool {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" || !strings.Contains(haystack, needle) {
		return false
	}
	if _, dup := seen[needle]; dup {
		return false
	}
	seen[needle] = struct{}{}
	*keywords = append(*keywords, keyword)
	return true
}
