package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		debug   bool
		out     []string
		errs    []string
		missing string
	}{
		{
			name:    "info",
			prefix:  "phys",
			out:     []string{"[phys] INFO: tick 3"},
			errs:    []string{"[phys] WARN: careful", "[phys] ERROR: broken"},
			missing: "DEBUG",
		},
		{
			name:   "debug",
			prefix: "phys",
			debug:  true,
			out:    []string{"[phys] DEBUG: shown 2", "[phys] INFO: tick 3"},
			errs:   []string{"[phys] WARN: careful"},
		},
		{
			name: "no prefix",
			out:  []string{"INFO: tick 3"},
			errs: []string{"ERROR: broken"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := NewWriterLogger(tt.prefix, tt.debug, &out, &errOut)
			l.Debugf("shown %d", 2)
			l.Infof("tick %d", 3)
			l.Warnf("careful")
			l.Errorf("broken")

			for _, s := range tt.out {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tt.errs {
				assert.Contains(t, errOut.String(), s)
			}
			assert.NotContains(t, out.String(), "WARN")
			assert.NotContains(t, errOut.String(), "INFO")
			if tt.missing != "" {
				assert.NotContains(t, out.String(), tt.missing)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "LEVEL(9)", Level(9).String())
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	assert.NotNil(t, l)
	l.Infof("nothing happens")

	var out bytes.Buffer
	w := NewWriterLogger("", false, &out, &out)
	assert.Same(t, w, OrNop(w))
}
