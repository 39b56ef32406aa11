package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withStamp(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestGetStampedRelease(t *testing.T) {
	withStamp(t, "v1.4.0", "0123456789abcdef", "2024-03-09T14:05:00Z")

	info := Get()

	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.IsRelease())
	assert.Equal(t, "v1.4.0 (0123456)", info.Short())
}

func TestDevBuild(t *testing.T) {
	info := Info{Version: "dev-abcdef1", GitCommit: "abcdef1234"}
	assert.False(t, info.IsRelease())
	assert.Equal(t, "dev-abcdef1", info.Short())

	info = Info{Version: "dev", GitCommit: "unknown"}
	assert.False(t, info.IsRelease())
	assert.Equal(t, "dev", info.Short())
}

func TestString(t *testing.T) {
	info := Info{
		Version:   "v2.0.0",
		GitCommit: "feedface",
		BuildTime: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
		Dirty:     true,
	}

	out := info.String()

	assert.Equal(t, []string{
		"Version: v2.0.0",
		"Commit: feedface (dirty)",
		"Built: 2024-01-02T03:04:05Z",
		"Go: go1.24.4",
		"Platform: linux/amd64",
	}, strings.Split(out, "\n"))
}

func TestParseBuildTime(t *testing.T) {
	tests := []struct {
		input string
		zero  bool
	}{
		{"2024-03-09T14:05:00Z", false},
		{"2024-03-09T14:05:00", false},
		{"2024-03-09 14:05:00", false},
		{"unknown", true},
		{"", true},
		{"yesterday", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseBuildTime(tt.input).IsZero())
		})
	}
}
