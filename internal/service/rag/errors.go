package rag

import (
	"errors"
	"fmt"
	"net/http"

	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

const opRetrieveAndGenerate = "retrieve_and_generate"

var (
	// ErrUpstream marks every failure of the retrieve-and-generate call.
	ErrUpstream = errors.New("upstream retrieve-and-generate failed")

	// ErrMalformedResponse is reported when the upstream returns no output text.
	ErrMalformedResponse = errors.New("response is missing output text")
)

// UpstreamError describes a failed upstream call. It matches ErrUpstream
// and the underlying cause with errors.Is.
type UpstreamError struct {
	Operation string
	Code      string
	Status    int
	Message   string
	Err       error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Code != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (%s, status %d): %v", ErrUpstream, e.Operation, e.Code, e.Status, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (%s): %v", ErrUpstream, e.Operation, e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", ErrUpstream, e.Operation, e.Err)
	}
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// Throttled reports whether the upstream rejected the call for rate reasons.
func (e *UpstreamError) Throttled() bool {
	return e.Status == http.StatusTooManyRequests || e.Code == "ThrottlingException"
}

func wrapUpstreamError(operation string, err error) error {
	upstream := &UpstreamError{Operation: operation, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		upstream.Code = apiErr.ErrorCode()
		upstream.Message = apiErr.ErrorMessage()
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		upstream.Status = respErr.HTTPStatusCode()
	}
	return upstream
}
