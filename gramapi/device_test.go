package gramapi

import (
	"strings"
	"testing"
)

func TestProfileForAttemptRotates(t *testing.T) {
	first := ProfileForAttempt(0)
	if first.Model == "" {
		t.Fatal("empty device profile")
	}
	// The pool wraps around, so attempt N and N+len yield the same profile.
	for n := 0; n < 6; n++ {
		a := ProfileForAttempt(n)
		b := ProfileForAttempt(n + 3)
		if a != b {
			t.Errorf("attempt %d and %d disagree: %+v vs %+v", n, n+3, a, b)
		}
	}
	if ProfileForAttempt(0) == ProfileForAttempt(1) {
		t.Error("consecutive attempts should use different profiles")
	}
}

func TestGenerateDeviceID(t *testing.T) {
	id := GenerateDeviceID("alice", "secret")
	if !strings.HasPrefix(id, "android-") {
		t.Errorf("device id %q missing android- prefix", id)
	}
	if len(id) != len("android-")+16 {
		t.Errorf("device id %q has unexpected length", id)
	}
}
