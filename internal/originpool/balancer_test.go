package originpool

import (
	"net/url"
	"testing"
)

func u(host string) *url.URL { return &url.URL{Scheme: "https", Host: host} }

func TestRoundRobinBalancer_CyclesTargetsInOrder(t *testing.T) {
	b := newBalancer("rr", []*url.URL{u("a"), u("b"), u("c")}, false)

	got := []string{
		b.Pick(false).Host,
		b.Pick(false).Host,
		b.Pick(false).Host,
		b.Pick(false).Host,
	}
	want := []string{"a", "b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pick %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestRoundRobinBalancer_SingleHostAlwaysReturnsIt(t *testing.T) {
	b := newBalancer("rr", []*url.URL{u("only")}, false)
	for i := 0; i < 3; i++ {
		if got := b.Pick(false); got == nil || got.Host != "only" {
			t.Fatalf("pick %d: got %v want only", i, got)
		}
	}
}

func TestLeastConnectionsBalancer_PrefersIdleTarget(t *testing.T) {
	b := newBalancer("least_conn", []*url.URL{u("busy"), u("idle")}, false)

	release := b.Acquire(u("busy"))
	defer release()
	release2 := b.Acquire(u("busy"))
	defer release2()

	picked := b.Pick(false)
	if picked == nil || picked.Host != "idle" {
		t.Fatalf("expected idle to be picked, got %v", picked)
	}
}

func TestLeastConnectionsBalancer_ReleaseRestoresEligibility(t *testing.T) {
	b := newBalancer("lc", []*url.URL{u("x"), u("y")}, false)

	releaseX := b.Acquire(u("x"))
	_ = b.Pick(false)
	releaseX()

	// After releasing x's only active connection, neither has an active
	// connection; picking must not panic and must return one of the two.
	got := b.Pick(false)
	if got == nil || (got.Host != "x" && got.Host != "y") {
		t.Fatalf("unexpected pick after release: %v", got)
	}
}

func TestNewBalancer_DefaultsToRoundRobin(t *testing.T) {
	b := newBalancer("", []*url.URL{u("a")}, false)
	if b.Strategy() != "round_robin" {
		t.Fatalf("expected round_robin default, got %s", b.Strategy())
	}
}

func TestSameOrigin_ComparesSchemeAndHostCaseInsensitively(t *testing.T) {
	a := &url.URL{Scheme: "HTTPS", Host: "Example.com"}
	b := &url.URL{Scheme: "https", Host: "example.com"}
	if !sameOrigin(a, b) {
		t.Fatalf("expected sameOrigin to ignore case")
	}
	if sameOrigin(a, nil) {
		t.Fatalf("expected sameOrigin(a, nil) to be false")
	}
}
