package source

import (
	"strings"
)

// Canonical field keys shared between adapters and the fusion stage.
const (
	FieldCauseOfDeath   = "cause_of_death"
	FieldCauseDetails   = "cause_details"
	FieldCircumstances  = "circumstances"
	FieldLocation       = "location"
	FieldNotableFactors = "notable_factors"
	FieldRelatedPeople  = "related_people"
)

// deathKeywords are the markers used to locate death coverage in page text
// and to score how much a page actually talks about the death.
var deathKeywords = []string{
	"cause of death", "died of", "died from", "death was caused",
	"passed away", "succumbed to", "was killed", "suicide", "overdose",
	"heart attack", "cancer", "complications",
}

// parseDeathFacts pulls the low-hanging structured facts out of page text.
// This is deliberately shallow: the heavy lifting belongs to the fusion
// stage and the optional model cleanup pass.
func parseDeathFacts(content string) map[string]any {
	fields := make(map[string]any)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		if cause, ok := strings.CutPrefix(lower, "cause of death"); ok {
			cause = strings.Trim(cause, " :|*\t")
			if cause != "" && len(cause) < 120 {
				// Re-slice the original line to keep casing.
				fields[FieldCauseOfDeath] = strings.Trim(trimmed[len(trimmed)-len(cause):], " :|*\t")
			}
			continue
		}

		for _, marker := range []string{"died of ", "died from ", "succumbed to "} {
			if idx := strings.Index(lower, marker); idx >= 0 {
				rest := trimmed[idx+len(marker):]
				if end := strings.IndexAny(rest, ".;,\n"); end > 0 {
					rest = rest[:end]
				}
				rest = strings.TrimSpace(rest)
				if _, have := fields[FieldCauseOfDeath]; !have && rest != "" && len(rest) < 120 {
					fields[FieldCauseOfDeath] = rest
				}
			}
		}
	}

	if excerpt := deathExcerpt(content); excerpt != "" {
		fields[FieldCircumstances] = excerpt
	}

	return fields
}

// deathExcerpt returns the paragraph most concerned with the death, or "".
func deathExcerpt(content string) string {
	best := ""
	bestHits := 0
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if len(para) < 80 || len(para) > 2000 {
			continue
		}
		lower := strings.ToLower(para)
		hits := 0
		for _, kw := range deathKeywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = para
		}
	}
	if bestHits == 0 {
		return ""
	}
	return best
}

// contentConfidence scores how confidently a page answers the death
// question for the named subject.
func contentConfidence(content, name string) float64 {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	lower := strings.ToLower(content)

	score := 0.2
	if strings.Contains(lower, strings.ToLower(foldName(name))) {
		score += 0.2
	}
	hits := 0
	for _, kw := range deathKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	switch {
	case hits >= 3:
		score += 0.5
	case hits == 2:
		score += 0.35
	case hits == 1:
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// blockedMarkers flag anti-bot and login-wall pages that come back with a
// 200 status but no usable content.
var blockedMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"verify you are a human",
	"captcha",
	"access denied",
	"sign in to continue",
}

// isBlockedContent reports whether page text is an access-denial shell
// rather than real content.
func isBlockedContent(content string) (bool, string) {
	lower := strings.ToLower(content)
	for _, m := range blockedMarkers {
		if strings.Contains(lower, m) {
			return true, m
		}
	}
	return false, ""
}

// cleanJSON strips markdown fences and extracts the outermost JSON object
// from model output. Localized from the fusion synthesis stage.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
