package pipeline

import "testing"

func TestEffectiveTTL_NoStoreIsZero(t *testing.T) {
	if got := effectiveTTL("no-store", 30); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEffectiveTTL_NoCacheIsZero(t *testing.T) {
	if got := effectiveTTL("no-cache", 30); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEffectiveTTL_MaxAgeHonored(t *testing.T) {
	if got := effectiveTTL("max-age=42", 30); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestEffectiveTTL_MaxAgeZeroEquivalentToNoStore(t *testing.T) {
	if got := effectiveTTL("max-age=0", 30); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestEffectiveTTL_MalformedMaxAgeFallsThroughToDefault(t *testing.T) {
	if got := effectiveTTL("max-age=notanumber", 30); got != 30 {
		t.Fatalf("expected default 30, got %d", got)
	}
}

func TestEffectiveTTL_AbsentDirectiveUsesDefault(t *testing.T) {
	if got := effectiveTTL("", 30); got != 30 {
		t.Fatalf("expected default 30, got %d", got)
	}
}

func TestEffectiveTTL_CaseInsensitiveAndWhitespaceTolerant(t *testing.T) {
	if got := effectiveTTL(" NO-STORE , max-age=5 ", 30); got != 0 {
		t.Fatalf("expected no-store (0) to win regardless of order, got %d", got)
	}
}
