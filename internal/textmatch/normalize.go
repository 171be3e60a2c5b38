package textmatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// punctuationMarks lists the sentence-level marks removed by Normalize,
// including Hebrew geresh and gershayim. Marks are dropped rather than
// replaced with a space so acronyms such as צה"ל stay a single token.
const punctuationMarks = ".,\"'`\u05f3\u05f4\u201c\u201d\u2018\u2019\u201e()[]{}!?;:"

// stopWords are removed only when they form a whole token. The single
// letters are the prefix particles (in, as, to, from, the, that, and).
var stopWords = toSet([]string{
	"של", "את", "על", "עם", "זה", "זו", "זאת", "כי", "גם", "כל", "אשר",
	"הוא", "היא", "הם", "הן", "אל", "או", "אם", "כך", "יש", "רק", "עוד", "מאוד",
	"ב", "כ", "ל", "מ", "ה", "ש", "ו",
})

// Normalize returns the comparison form of text: lowercased, without
// punctuation, with whitespace collapsed and standalone stop words dropped.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if strings.ContainsRune(punctuationMarks, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, token := range tokens {
		if _, stop := stopWords[token]; stop {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// ContentHash is the lowercase hex SHA-256 of Normalize(text).
func ContentHash(text string) string {
	return HashNormalized(Normalize(text))
}

// HashNormalized hashes text that already went through Normalize.
func HashNormalized(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
