package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"populated", &Context{Version: "v1.2.0", BuildDate: "2026-10-01"}, "v1.2.0", "2026-10-01"},
		{"empty", &Context{}, "unknown", "unknown"},
		{"nil", nil, "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestContext_Release(t *testing.T) {
	t.Parallel()
	c := New("v1.2.0", "2026-10-01")
	assert.Equal(t, "interpro-loader@v1.2.0", c.Release())
	assert.Equal(t, "interpro-loader v1.2.0 (built 2026-10-01)", c.String())
}

func TestNew_KeepsExplicitVersion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "v9.9.9", New("v9.9.9", "").Version)
	assert.Equal(t, "unknown", New("v9.9.9", "").GetBuildDate())
}
