package advisor

import (
	"context"
	"strings"
	"testing"
	"time"
)

// setupTestCore builds a core on the deterministic offline provider with an
// in-memory state store and the periodic sweep disabled.
func setupTestCore(t *testing.T, mutate func(*CoreConfig)) *Core {
	t.Helper()

	config := CoreConfig{
		PrimaryProvider:  "offline",
		FallbackProvider: "offline",
		SweepInterval:    -1,
	}
	if mutate != nil {
		mutate(&config)
	}
	core, err := NewCore(config)
	if err != nil {
		t.Fatalf("failed to build test core: %v", err)
	}
	t.Cleanup(func() { _ = core.Close() })
	return core
}

// testStageDeps builds stage dependencies over the offline provider without
// a narration hook, so every narrative comes from templates.
func testStageDeps(t *testing.T) stageDeps {
	t.Helper()
	manager := NewProviderManager(NewSeededProvider(), NewSeededProvider(), nil, nil)
	return stageDeps{providers: manager}
}

// frozenClock returns a now func pinned to the given time plus any offsets
// applied through the returned advance function.
func frozenClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// floatEquals checks if two floats are approximately equal.
func floatEquals(a, b, epsilon float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

// assertFloatEquals fails the test if the floats are not approximately equal.
func assertFloatEquals(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if !floatEquals(got, want, 0.001) {
		t.Errorf("%s: got %.4f, want %.4f", msg, got, want)
	}
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertError fails the test if err is nil.
func assertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error but got nil", msg)
	}
}

// assertErrorCode fails the test if err does not carry the given code.
func assertErrorCode(t *testing.T, err error, code ErrorCode, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected %s error but got nil", msg, code)
	}
	if !IsErrorCode(err, code) {
		t.Fatalf("%s: expected %s, got %v", msg, code, err)
	}
}

// assertContains checks if the string contains the substring.
func assertContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: string %q does not contain %q", msg, s, substr)
	}
}
