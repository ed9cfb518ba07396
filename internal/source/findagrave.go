package source

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/pkg/jina"
)

// FindAGraveSource digests Find a Grave memorial pages. Content there is
// user-submitted, so the adapter sits in the bottom reliability tier no
// matter how complete the memorial looks.
type FindAGraveSource struct {
	meta
	client jina.Client
}

// NewFindAGrave creates the Find a Grave adapter.
func NewFindAGrave(client jina.Client, s Settings) *FindAGraveSource {
	return &FindAGraveSource{
		meta:   newMeta("findagrave", CategoryFree, ReliabilityUserGenerated, 0, 2*time.Second, 30*time.Second, s),
		client: client,
	}
}

func (f *FindAGraveSource) Lookup(ctx context.Context, subject model.Subject) (*LookupResult, error) {
	query := searchQuery(subject)

	resp, err := f.client.Search(ctx, query, jina.WithSiteFilter("findagrave.com"))
	if err != nil {
		return nil, eris.Wrap(err, "findagrave: search")
	}

	res := f.result()
	res.Query = query
	res.Domain = "findagrave.com"
	res.ContentType = "memorial"

	var b strings.Builder
	for _, hit := range resp.Data {
		text := hit.Content
		if text == "" {
			text = hit.Description
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if blocked, marker := isBlockedContent(text); blocked {
			return res, &BlockedError{Source: f.Name(), Reason: marker}
		}
		b.WriteString(text)
		b.WriteString("\n\n")
		if res.URL == "" {
			res.URL = hit.URL
		}
	}

	content := b.String()
	res.RawText = content
	res.Fields = parseDeathFacts(content)
	res.Confidence = contentConfidence(content, subject.Name)
	// Cap confidence: memorials routinely copy unverified causes.
	if res.Confidence > 0.6 {
		res.Confidence = 0.6
	}
	res.Success = content != "" && res.Confidence > 0
	return res, nil
}
