package domain

import (
	"context"
	"errors"
)

var (
	// ErrInvalidRequest signals a malformed search request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrChannelsUnavailable signals that every requested retrieval channel failed.
	ErrChannelsUnavailable = errors.New("retrieval channels unavailable")
	// ErrChannelTimeout signals that a retrieval channel exceeded its sub-deadline.
	ErrChannelTimeout = errors.New("retrieval channel timeout")
	// ErrPoolExhausted signals that no storage slot became free in time.
	ErrPoolExhausted = errors.New("storage pool exhausted")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingThrottled signals that the local provider rate limit had no token in time.
	ErrEmbeddingThrottled = errors.New("embedding rate limited")
	// ErrTaxonomyUnavailable signals that the taxonomy path list could not be read.
	ErrTaxonomyUnavailable = errors.New("taxonomy unavailable")
	// ErrQuerySyntax signals that the full-text parser rejected the query.
	ErrQuerySyntax = errors.New("query syntax error")
	// ErrRerankFailed signals a reranker failure.
	ErrRerankFailed = errors.New("rerank failed")
)

// ErrorKind is the wire-level error classification.
type ErrorKind string

// Wire error kinds.
const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindChannelsUnavailable ErrorKind = "channels_unavailable"
	KindInternal            ErrorKind = "internal"
)

// KindOf classifies err into a wire error kind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrChannelsUnavailable):
		return KindChannelsUnavailable
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the caller may retry the failed operation as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrEmbeddingThrottled) ||
		errors.Is(err, ErrChannelTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
