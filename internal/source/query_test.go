package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deadonfilm/deadonfilm/internal/model"
)

func TestFoldName(t *testing.T) {
	cases := map[string]string{
		"Raúl Juliá":     "Raul Julia",
		"Brigitte Bardot": "Brigitte Bardot",
		"Göran Stangertz": "Goran Stangertz",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, foldName(in))
	}
}

func TestSearchQuery(t *testing.T) {
	q := searchQuery(model.Subject{Name: "Raúl Juliá", DeathYear: 1994})
	assert.Equal(t, `"Raul Julia" actor death cause 1994`, q)

	q = searchQuery(model.Subject{Name: "John Smith"})
	assert.Equal(t, `"John Smith" actor death cause`, q)
}

func TestWikipediaTitle(t *testing.T) {
	assert.Equal(t, "River_Phoenix", wikipediaTitle(model.Subject{Name: " River Phoenix "}))
}
