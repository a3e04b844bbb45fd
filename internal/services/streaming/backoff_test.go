package streamingsvc

import (
	"testing"
	"time"
)

func TestComputeBackoff(t *testing.T) {
	// deterministic policy without jitter
	pol := RetryPolicy{Type: BackoffExp, Base: 200 * time.Millisecond, Cap: 1500 * time.Millisecond, Factor: 2.0, MaxAttempts: 5}
	b1 := computeBackoff(pol, 1)
	b2 := computeBackoff(pol, 2)
	b3 := computeBackoff(pol, 3)
	b4 := computeBackoff(pol, 4)
	if b1 != 200*time.Millisecond || b2 != 400*time.Millisecond || b3 != 800*time.Millisecond {
		t.Fatalf("unexpected backoffs: %v %v %v", b1, b2, b3)
	}
	if b4 != 1500*time.Millisecond {
		t.Fatalf("cap not applied: %v", b4)
	}
	// jitter stays within [0, cap]
	pol.Type = BackoffExpJitter
	for i := uint32(1); i <= 5; i++ {
		if bj := computeBackoff(pol, i); bj < 0 || bj > 1500*time.Millisecond {
			t.Fatalf("jitter out of range at %d: %v", i, bj)
		}
	}
	// fixed and none
	pol.Type = BackoffFixed
	if b := computeBackoff(pol, 4); b != 200*time.Millisecond {
		t.Fatalf("fixed: %v", b)
	}
	pol.Type = BackoffNone
	if b := computeBackoff(pol, 4); b != 0 {
		t.Fatalf("none: %v", b)
	}
}

func TestDefaultReconnectPolicy(t *testing.T) {
	pol := defaultReconnectPolicy(0, 0)
	if pol.Base != 250*time.Millisecond || pol.MaxAttempts != 3 {
		t.Fatalf("defaults: %+v", pol)
	}
	pol = defaultReconnectPolicy(10*time.Millisecond, 7)
	if pol.Base != 10*time.Millisecond || pol.MaxAttempts != 7 {
		t.Fatalf("explicit: %+v", pol)
	}
	if pol.Type != BackoffExpJitter {
		t.Fatalf("type: %v", pol.Type)
	}
}
