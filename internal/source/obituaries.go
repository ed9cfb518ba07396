package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/pkg/jina"
)

// ObituarySource searches the web for obituary and news coverage of the
// subject's death and digests the top results.
type ObituarySource struct {
	meta
	client     jina.Client
	maxResults int
}

// NewObituaries creates the obituary search adapter.
func NewObituaries(client jina.Client, s Settings) *ObituarySource {
	return &ObituarySource{
		meta:       newMeta("obituaries", CategoryFree, ReliabilitySearchDigest, 0, time.Second, 30*time.Second, s),
		client:     client,
		maxResults: 5,
	}
}

func (o *ObituarySource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	query := searchQuery(subject)

	resp, err := o.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "obituaries: search")
	}

	res := o.result()
	res.Query = query
	res.ContentType = "search_digest"

	var b strings.Builder
	count := 0
	for _, hit := range resp.Data {
		if count >= o.maxResults {
			break
		}
		text := hit.Content
		if text == "" {
			text = hit.Description
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString("--- " + hit.Title + " (" + hit.URL + ") ---\n")
		b.WriteString(text)
		b.WriteString("\n\n")
		if res.URL == "" {
			res.URL = hit.URL
		}
		count++
	}

	content := b.String()
	res.RawText = content
	res.Fields = parseDeathFacts(content)
	res.Confidence = contentConfidence(content, subject.Name)
	res.Success = count > 0 && res.Confidence > 0
	return res, nil
}
