package service

import (
	"fmt"

	"github.com/thoas/go-funk"
	"golang.org/x/text/language"
)

// NormalizeLanguage parses a BCP 47 tag and returns its canonical form.
func NormalizeLanguage(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return tag.String(), nil
}

// NormalizeLanguages canonicalizes every tag and drops duplicates, keeping
// the first occurrence.
func NormalizeLanguages(langs []string) ([]string, error) {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		n, err := NormalizeLanguage(l)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return funk.UniqString(out), nil
}
