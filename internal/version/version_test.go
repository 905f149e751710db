package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	defer func() { Version, Commit, BuildTime = oldV, oldC, oldB }()

	Version, Commit, BuildTime = "1.2.3", "abc1234", "2026-01-02T15:04:05Z"
	if got, want := String(), "1.2.3 (abc1234) built 2026-01-02T15:04:05Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
