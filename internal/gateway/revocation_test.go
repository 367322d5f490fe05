package gateway

import (
	"testing"
	"time"
)

func TestRevocationEvictedAfterExpiry(t *testing.T) {
	c := newClock()
	list := NewMemoryRevocations(c.Now)

	list.Revoke("a", c.Now().Add(time.Minute))
	list.Revoke("b", c.Now().Add(time.Hour))
	list.Revoke("already-expired", c.Now().Add(-time.Second))

	if !list.Revoked("a") || !list.Revoked("b") {
		t.Fatal("fresh entries not reported as revoked")
	}
	if list.Revoked("already-expired") || list.Len() != 2 {
		t.Fatalf("expired entry stored, len = %d", list.Len())
	}

	c.Advance(2 * time.Minute)
	if list.Revoked("a") {
		t.Fatal("entry reported revoked after expiry")
	}
	if list.Len() != 1 {
		t.Fatalf("lookup did not evict, len = %d", list.Len())
	}

	c.Advance(2 * time.Hour)
	if removed := list.Sweep(); removed != 1 || list.Len() != 0 {
		t.Fatalf("Sweep() removed %d, len = %d", removed, list.Len())
	}
}
