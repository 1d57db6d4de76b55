package notifier

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"contentmill/internal/domain/entity"
)

// contextKey avoids collisions with other packages' context values.
type contextKey string

const requestIDKey contextKey = "request_id"

// RateLimitError is a 429 response from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError is a 4xx response other than 429. Not retryable: the request
// itself is wrong and repeating it cannot help.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError is a 5xx response. Retryable.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// as429 extracts the rate limit error when err is one.
func as429(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryable reports whether a failed request is worth repeating. Server
// errors and network errors are, client errors are not, and 429s are handled
// separately through as429.
func isRetryable(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	return true
}

// truncate cuts text to maxLen bytes, appending suffix when it had to cut.
func truncate(text string, maxLen int, suffix string) string {
	if len(text) <= maxLen {
		return text
	}
	cutAt := maxLen - len(suffix)
	if cutAt < 0 {
		cutAt = 0
	}
	return text[:cutAt] + suffix
}

// maxListedErrors caps how many non-fatal errors an announcement spells out.
const maxListedErrors = 5

// headline names the outcome for message titles.
func headline(ann *entity.SiteAnnouncement) string {
	if ann.RolledBack {
		return "Site deploy rolled back"
	}
	return "Site deployed"
}

// summaryLine renders the one-line deploy summary every channel shares.
func summaryLine(ann *entity.SiteAnnouncement) string {
	d := ann.Duration.Round(time.Millisecond)
	if ann.RolledBack {
		return fmt.Sprintf("Deploy failed after %s and the previous site was restored from backup.", d)
	}
	return fmt.Sprintf("%d files deployed in %s.", ann.FilesUploaded, d)
}

// errorLines renders the non-fatal error list, at most maxListedErrors long.
// Empty when the deploy was clean.
func errorLines(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	shown := errs
	if len(shown) > maxListedErrors {
		shown = shown[:maxListedErrors]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d non-fatal errors:", len(errs))
	for _, e := range shown {
		b.WriteString("\n- ")
		b.WriteString(e)
	}
	if len(errs) > len(shown) {
		fmt.Fprintf(&b, "\n- and %d more", len(errs)-len(shown))
	}
	return b.String()
}
