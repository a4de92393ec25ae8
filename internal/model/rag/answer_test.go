package rag

import (
	"reflect"
	"testing"
)

func TestBlockWithoutProvenanceIsNoContext(t *testing.T) {
	block := AnswerResult{AnswerText: "Refunds within 30 days."}.Block()

	if !block.NoContext {
		t.Fatal("expected no-context block")
	}
	if got := block.Lines(); !reflect.DeepEqual(got, []string{"No Context"}) {
		t.Fatalf("unexpected lines: %v", got)
	}
}

func TestBlockJoinsContextsAndKeepsFirstSource(t *testing.T) {
	result := AnswerResult{
		AnswerText: "answer",
		Provenance: []ProvenanceEntry{
			{ContextText: "first", SourceURI: "s3://bucket/a.pdf"},
			{ContextText: "second"},
			{ContextText: "third"},
		},
	}

	block := result.Block()
	if block.NoContext {
		t.Fatal("expected provenance block")
	}
	if len(block.Contexts) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(block.Contexts))
	}

	want := []string{
		"Context used: first, second, third",
		"Source Document: s3://bucket/a.pdf",
	}
	if got := block.Lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines:\n got %q\nwant %q", got, want)
	}
}

func TestSourceEmptyWhenNoEntryHasLocation(t *testing.T) {
	result := AnswerResult{Provenance: []ProvenanceEntry{{ContextText: "only text"}}}

	if result.Source() != "" {
		t.Fatalf("expected empty source, got %q", result.Source())
	}
	if got := result.Block().Lines()[1]; got != "Source Document: " {
		t.Fatalf("unexpected source line %q", got)
	}
}
