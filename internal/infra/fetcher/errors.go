package fetcher

import "errors"

// Sentinel errors for content fetching. The enhancement pool treats all of
// them as soft failures and falls back to the item's original body.
var (
	// ErrTooManyRedirects is returned when a fetch exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge is returned when a response exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrFetchTimeout is returned when a single fetch exceeds its timeout.
	ErrFetchTimeout = errors.New("content fetch timed out")

	// ErrExtractFailed is returned when readability finds no article text.
	ErrExtractFailed = errors.New("content extraction failed")
)
