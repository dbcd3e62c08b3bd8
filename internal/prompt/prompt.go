// Package prompt composes the instruction string sent ahead of the
// conversation. Composition is pure: no clock, no randomness.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is the base instruction used when the caller does
// not supply an override.
const DefaultSystemPrompt = `You are the Triple Helix Innovation Chatbot.

Constraints:
- All answers must be consistent with Triple Helix innovation research (university-industry-government interactions; innovation systems; knowledge/technology transfer).
- Provide citations for factual claims (papers, reports, or credible sources). Use inline citations like:
  [Author, Year] or [Report Name, Year] and include a short "Sources" section when appropriate.
- If a claim is uncertain or not supported by the provided context, say so and ask clarifying questions.
- Prefer evidence-based, specific, and actionable answers.`

// Compose merges the base instructions with context documents and, last,
// any extra system notes. Blank documents are skipped; the numbered
// wrappers preserve input order. Identical inputs always produce
// byte-identical output.
func Compose(base string, contextDocuments []string, systemNotes string) string {
	var docs []string
	for _, d := range contextDocuments {
		if trimmed := strings.TrimSpace(d); trimmed != "" {
			docs = append(docs, trimmed)
		}
	}

	out := base
	if len(docs) > 0 {
		wrapped := make([]string, len(docs))
		for i, d := range docs {
			n := i + 1
			wrapped[i] = fmt.Sprintf("--- Context Document %d ---\n%s\n--- End Context Document %d ---", n, d, n)
		}
		out += "\n\nReference documents (use these when relevant):\n\n" + strings.Join(wrapped, "\n\n")
	}

	if notes := strings.TrimSpace(systemNotes); notes != "" {
		out += "\n\nAdditional system notes:\n\n" + notes
	}
	return out
}
