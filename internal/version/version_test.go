package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "1.0.0",
		Commit:    "abc123def456",
		Date:      "2025-01-01T12:00:00Z",
		GoVersion: "go1.24.6",
		Platform:  "linux/amd64",
	}

	assert.Equal(t, "Stepwise 1.0.0 (abc123de) built 2025-01-01T12:00:00Z with go1.24.6 for linux/amd64", info.String())
	assert.Equal(t, "1.0.0", info.Short())

	info.Commit = "abc"
	assert.Contains(t, info.String(), "(abc)")
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Version)
}

func TestFillFromBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info Info
		bi   debug.BuildInfo
		want Info
	}{
		{
			name: "module version and vcs settings",
			info: Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "v0.3.0"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789"},
					{Key: "vcs.time", Value: "2025-02-02T00:00:00Z"},
				},
			},
			want: Info{Version: "v0.3.0", Commit: "0123456789", Date: "2025-02-02T00:00:00Z"},
		},
		{
			name: "ldflags win",
			info: Info{Version: "1.2.3", Commit: "feedface", Date: "today"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.3.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}},
			},
			want: Info{Version: "1.2.3", Commit: "feedface", Date: "today"},
		},
		{
			name: "devel build",
			info: Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi:   debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Info{Version: "dev", Commit: "unknown", Date: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			fillFromBuildInfo(&info, &tt.bi)
			assert.Equal(t, tt.want, info)
		})
	}
}
