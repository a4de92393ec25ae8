// Package rag answers questions through the Amazon Bedrock knowledge-base
// RetrieveAndGenerate API and turns the response into an answer plus the
// provenance of the snippets that backed it.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/zhouzirui/kb-chat/backend/internal/model/rag"
)

// RuntimeClient mirrors the subset of the Bedrock Agent Runtime client used
// by the service. It matches *bedrockagentruntime.Client so tests can pass a
// fake.
type RuntimeClient interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Options configures the answer service.
type Options struct {
	// Runtime performs the upstream call. Required.
	Runtime RuntimeClient

	// KnowledgeBaseID identifies the knowledge base to retrieve from. Required.
	KnowledgeBaseID string

	// ModelARN is the foundation model used for generation. Required.
	ModelARN string
}

// Service is a stateless façade over RetrieveAndGenerate. Every call issues
// exactly one upstream request; nothing is cached.
type Service struct {
	runtime         RuntimeClient
	knowledgeBaseID string
	modelARN        string
}

// NewService validates opts and builds a Service.
func NewService(opts Options) (*Service, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock agent runtime client is required")
	}
	if opts.KnowledgeBaseID == "" {
		return nil, errors.New("knowledge base id is required")
	}
	if opts.ModelARN == "" {
		return nil, errors.New("model arn is required")
	}
	return &Service{
		runtime:         opts.Runtime,
		knowledgeBaseID: opts.KnowledgeBaseID,
		modelARN:        opts.ModelARN,
	}, nil
}

// Answer sends question to the knowledge base and parses the generated answer
// and its provenance. Failures of the call itself, or a response without
// output text, are reported as errors wrapping ErrUpstream.
func (s *Service) Answer(ctx context.Context, question string) (rag.AnswerResult, error) {
	output, err := s.runtime.RetrieveAndGenerate(ctx, s.buildInput(question))
	if err != nil {
		return rag.AnswerResult{}, wrapUpstreamError(opRetrieveAndGenerate, err)
	}

	result, err := translateOutput(output)
	if err != nil {
		return rag.AnswerResult{}, err
	}

	log.Printf("[rag] answered question length=%d references=%d", len(result.AnswerText), len(result.Provenance))
	return result, nil
}

func (s *Service) buildInput(question string) *bedrockagentruntime.RetrieveAndGenerateInput {
	return &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &brtypes.RetrieveAndGenerateInput{
			Text: aws.String(question),
		},
		RetrieveAndGenerateConfiguration: &brtypes.RetrieveAndGenerateConfiguration{
			Type: brtypes.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &brtypes.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(s.knowledgeBaseID),
				ModelArn:        aws.String(s.modelARN),
			},
		},
	}
}

func translateOutput(output *bedrockagentruntime.RetrieveAndGenerateOutput) (rag.AnswerResult, error) {
	if output == nil || output.Output == nil || output.Output.Text == nil {
		return rag.AnswerResult{}, &UpstreamError{
			Operation: opRetrieveAndGenerate,
			Err:       ErrMalformedResponse,
		}
	}

	return rag.AnswerResult{
		AnswerText: aws.ToString(output.Output.Text),
		Provenance: extractProvenance(output.Citations),
	}, nil
}

// extractProvenance reads the references of the first citation only. Each
// reference contributes its text. The source locator is the first reference's
// location; a later reference supplies it only while every earlier one carried
// a location with an empty URI. A reference without content text invalidates
// the whole provenance so the answer is shown without context instead of
// failing.
func extractProvenance(citations []brtypes.Citation) []rag.ProvenanceEntry {
	if len(citations) == 0 || len(citations[0].RetrievedReferences) == 0 {
		return nil
	}

	references := citations[0].RetrievedReferences
	entries := make([]rag.ProvenanceEntry, 0, len(references))
	lookForSource := true
	for i, ref := range references {
		if ref.Content == nil || ref.Content.Text == nil {
			log.Printf("[rag] citation reference %d has no content text, dropping provenance", i)
			return nil
		}

		entry := rag.ProvenanceEntry{ContextText: aws.ToString(ref.Content.Text)}
		if lookForSource {
			uri, ok := locationURI(ref.Location)
			switch {
			case !ok:
				lookForSource = false
			case uri != "":
				entry.SourceURI = uri
				lookForSource = false
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// locationURI returns the reference URI and whether the location carries one
// at all. An S3 uri wins over a web url.
func locationURI(location *brtypes.RetrievalResultLocation) (string, bool) {
	if location == nil {
		return "", false
	}
	if location.S3Location != nil && location.S3Location.Uri != nil {
		return aws.ToString(location.S3Location.Uri), true
	}
	if location.WebLocation != nil && location.WebLocation.Url != nil {
		return aws.ToString(location.WebLocation.Url), true
	}
	return "", false
}

// String renders the service target for logs.
func (s *Service) String() string {
	return fmt.Sprintf("knowledgeBase=%s model=%s", s.knowledgeBaseID, s.modelARN)
}
