package retrievex

import "github.com/kailas-cloud/retrievex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrChannelsUnavailable    = domain.ErrChannelsUnavailable
	ErrChannelTimeout         = domain.ErrChannelTimeout
	ErrPoolExhausted          = domain.ErrPoolExhausted
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrTaxonomyUnavailable    = domain.ErrTaxonomyUnavailable
)

// IsRetryable reports whether a failed search may be retried as-is.
func IsRetryable(err error) bool { return domain.IsRetryable(err) }
