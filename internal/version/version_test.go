package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, Commit, BuildTime
	defer func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuild }()

	Version, Commit, BuildTime = "1.2.0", "abc1234", "2024-10-01T00:00:00Z"
	if got, want := String(), "1.2.0 (abc1234) built 2024-10-01T00:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
