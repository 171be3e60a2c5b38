package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Languages quotes are expected in. Restricting the model set keeps memory
// low and avoids misfiring on short Hebrew text.
var supportedLanguages = []lingua.Language{
	lingua.Hebrew,
	lingua.English,
	lingua.Arabic,
	lingua.Russian,
	lingua.French,
}

const minLetters = 6

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detector tags comment text with an ISO 639-1 code.
type Detector struct{}

func (Detector) DetectISO6391(text string) string {
	return DetectISO6391(text)
}

// DetectISO6391 returns the lowercase ISO 639-1 code of text, or "" when the
// text is too short or no language is confidently detected.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(supportedLanguages...).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}
