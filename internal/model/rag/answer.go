package rag

import "strings"

const (
	ContextLabel    = "Context used: "
	SourceLabel     = "Source Document: "
	NoContextNotice = "No Context"
)

// ProvenanceEntry is one retrieved snippet backing an answer. SourceURI is
// empty for every entry except the one that supplied the answer's source.
type ProvenanceEntry struct {
	ContextText string `json:"contextText"`
	SourceURI   string `json:"sourceUri,omitempty"`
}

// AnswerResult is the parsed outcome of a single retrieve-and-generate call.
// Provenance is empty when the upstream returned no usable citation.
type AnswerResult struct {
	AnswerText string            `json:"answerText"`
	Provenance []ProvenanceEntry `json:"provenance"`
}

// HasContext reports whether the answer carries provenance.
func (r AnswerResult) HasContext() bool {
	return len(r.Provenance) > 0
}

// Contexts returns the snippet texts in retrieval order.
func (r AnswerResult) Contexts() []string {
	contexts := make([]string, 0, len(r.Provenance))
	for _, entry := range r.Provenance {
		contexts = append(contexts, entry.ContextText)
	}
	return contexts
}

// Source returns the single source locator surfaced for the answer.
func (r AnswerResult) Source() string {
	for _, entry := range r.Provenance {
		if entry.SourceURI != "" {
			return entry.SourceURI
		}
	}
	return ""
}

// Block is the display payload rendered once, below the latest answer.
type Block struct {
	NoContext   bool     `json:"noContext"`
	Contexts    []string `json:"contexts,omitempty"`
	ContextLine string   `json:"contextLine,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Block builds the provenance block, or the no-context notice when the
// answer has no provenance.
func (r AnswerResult) Block() Block {
	if !r.HasContext() {
		return Block{NoContext: true}
	}
	contexts := r.Contexts()
	return Block{
		Contexts:    contexts,
		ContextLine: strings.Join(contexts, ", "),
		Source:      r.Source(),
	}
}

// Lines renders the block as plain text lines.
func (b Block) Lines() []string {
	if b.NoContext {
		return []string{NoContextNotice}
	}
	return []string{ContextLabel + b.ContextLine, SourceLabel + b.Source}
}
