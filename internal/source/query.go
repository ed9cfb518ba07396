package source

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

// foldName strips diacritics from an actor name so it matches the ASCII
// spellings most sources index under (e.g. "Raúl Juliá" -> "Raul Julia").
func foldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		return name
	}
	return folded
}

// searchQuery builds the web search query for a subject. The death year
// disambiguates actors who share a name.
func searchQuery(subject model.Subject) string {
	q := fmt.Sprintf("%q actor death cause", foldName(subject.Name))
	if subject.DeathYear > 0 {
		q = fmt.Sprintf("%s %d", q, subject.DeathYear)
	}
	return q
}

// wikipediaTitle guesses the Wikipedia article title for a subject.
func wikipediaTitle(subject model.Subject) string {
	return strings.ReplaceAll(strings.TrimSpace(subject.Name), " ", "_")
}
