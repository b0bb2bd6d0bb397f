package gramapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"challenge", errors.New("challenge_required"), KindChallengeRequired},
		{"checkpoint", errors.New("checkpoint_required: verify your account"), KindChallengeRequired},
		{"bad password", errors.New("bad_password"), KindBadPassword},
		{"bad password prose", errors.New("The password you entered is incorrect."), KindBadPassword},
		{"invalid user", errors.New("invalid_user"), KindInvalidUser},
		{"invalid user prose", errors.New("The username you entered doesn't appear to belong to an account."), KindInvalidUser},
		{"rate limit", errors.New("Please wait a few minutes before you try again."), KindRateLimited},
		{"429", errors.New("status 429: too many requests"), KindRateLimited},
		{"login required", errors.New("login_required"), KindAuthRequired},
		{"name resolution", errors.New("Temporary failure in name resolution"), KindNetwork},
		{"no such host", errors.New("dial tcp: lookup api.example: no such host"), KindNetwork},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout exceeded)"), KindNetwork},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), KindNetwork},
		{"not found", errors.New("media not found"), KindNotFound},
		{"404", errors.New("status 404"), KindNotFound},
		{"unknown", errors.New("something odd happened"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyTypedError(t *testing.T) {
	// A typed error keeps its kind even when the message would classify differently.
	err := NewError(KindRateLimited, "resolution gave up")
	if got := Classify(err); got != KindRateLimited {
		t.Errorf("Classify(typed) = %v, want KindRateLimited", got)
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if got := Classify(wrapped); got != KindRateLimited {
		t.Errorf("Classify(wrapped typed) = %v, want KindRateLimited", got)
	}
}
