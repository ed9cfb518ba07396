package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/pkg/jina"
)

// jinaReadRateUSD is the Jina Reader price per million tokens, used for
// actual-cost attribution on otherwise free sources.
const jinaReadRateUSD = 0.02

// WikipediaSource reads the subject's Wikipedia article through the Jina
// reader and extracts death facts from it.
type WikipediaSource struct {
	meta
	client jina.Client
}

// NewWikipedia creates the Wikipedia adapter.
func NewWikipedia(client jina.Client, s Settings) *WikipediaSource {
	return &WikipediaSource{
		meta:   newMeta("wikipedia", CategoryFree, ReliabilityEncyclopedia, 0, 500*time.Millisecond, 30*time.Second, s),
		client: client,
	}
}

func (w *WikipediaSource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	articleURL := "https://en.wikipedia.org/wiki/" + wikipediaTitle(subject)

	resp, err := w.client.Read(ctx, articleURL)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: read article")
	}

	res := w.result()
	res.URL = articleURL
	res.Domain = "en.wikipedia.org"
	res.ContentType = "article"
	res.CostUSD = float64(resp.Data.Usage.Tokens) / 1e6 * jinaReadRateUSD

	content := resp.Data.Content
	if blocked, marker := isBlockedContent(content); blocked {
		return res, &BlockedError{Source: w.Name(), Reason: marker}
	}

	res.RawText = content
	res.Fields = parseDeathFacts(content)
	res.Confidence = contentConfidence(content, subject.Name)
	res.Success = res.Confidence > 0 && len(res.Fields) > 0
	return res, nil
}
