package gramapi

import (
	"errors"
	"strings"
)

// Kind classifies a remote API failure into the categories the rest of the
// pipeline acts on.
type Kind int

const (
	// KindUnknown is any failure that matched no known pattern.
	KindUnknown Kind = iota
	// KindNetwork covers connectivity failures (DNS, refused, timeout).
	KindNetwork
	// KindChallengeRequired means the service demands out-of-band verification.
	KindChallengeRequired
	// KindBadPassword means the supplied password was rejected.
	KindBadPassword
	// KindInvalidUser means the account does not exist or is deactivated.
	KindInvalidUser
	// KindRateLimited means the service is throttling us; never auto-retried.
	KindRateLimited
	// KindAuthRequired means the operation needs a logged-in client.
	KindAuthRequired
	// KindNotFound means the content is gone or private.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindChallengeRequired:
		return "challenge_required"
	case KindBadPassword:
		return "bad_password"
	case KindInvalidUser:
		return "invalid_user"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthRequired:
		return "auth_required"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a remote failure with an attached classification.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds a pre-classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Classify maps a remote failure to a Kind by pattern-matching its
// lower-cased message text. This is inherently fragile -- the service changes
// its wording without notice -- so every call site goes through here and the
// raw text is expected to have been logged by the caller beforehand.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	lower := strings.ToLower(err.Error())

	// Account-actionable login failures first; these must never be retried.
	switch {
	case strings.Contains(lower, "challenge_required"),
		strings.Contains(lower, "checkpoint_required"),
		strings.Contains(lower, "checkpoint challenge"):
		return KindChallengeRequired
	case strings.Contains(lower, "bad_password"),
		strings.Contains(lower, "password you entered is incorrect"):
		return KindBadPassword
	case strings.Contains(lower, "invalid_user"),
		strings.Contains(lower, "invalid username"),
		strings.Contains(lower, "username you entered"):
		return KindInvalidUser
	}

	// Throttling propagates immediately so we never compound it.
	rateLimitPatterns := []string{
		"rate limit",
		"429",
		"too many requests",
		"please wait a few minutes",
		"throttled",
	}
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return KindRateLimited
		}
	}

	authPatterns := []string{
		"login_required",
		"login required",
		"not logged in",
		"requires authentication",
	}
	for _, p := range authPatterns {
		if strings.Contains(lower, p) {
			return KindAuthRequired
		}
	}

	networkPatterns := []string{
		"temporary failure in name resolution",
		"no such host",
		"network_error",
		"network is unreachable",
		"connection refused",
		"connection reset",
		"no route to host",
		"timed out",
		"timeout",
		"broken pipe",
		"dial tcp",
	}
	for _, p := range networkPatterns {
		if strings.Contains(lower, p) {
			return KindNetwork
		}
	}

	notFoundPatterns := []string{
		"not found",
		"404",
		"does not exist",
		"no longer available",
		"media is private",
		"post is private",
	}
	for _, p := range notFoundPatterns {
		if strings.Contains(lower, p) {
			return KindNotFound
		}
	}

	return KindUnknown
}
