package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputePaneWidths(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		split       int
		left, right int
	}{
		{"degenerate", 1, 50, 1, 1},
		{"even split", 100, 50, 50, 50},
		{"left clamped to min pane", 100, 20, 24, 76},
		{"right clamped to min pane", 100, 80, 76, 24},
		{"narrow terminal keeps ratio", 40, 60, 24, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := computePaneWidths(tt.total, tt.split)
			assert.Equal(t, tt.left, left)
			assert.Equal(t, tt.right, right)
		})
	}
}

func TestValidateAndNormalizeConfig(t *testing.T) {
	saved := config
	t.Cleanup(func() { config = saved })

	config.ViewSplit = 95
	config.StatsWindow = 2
	assert.NoError(t, validateAndNormalizeConfig())
	assert.Equal(t, 80, config.ViewSplit)
	assert.Equal(t, 16, config.StatsWindow)

	config = saved
	config.ActivityWindow = 1500 * time.Millisecond
	assert.ErrorContains(t, validateAndNormalizeConfig(), "multiple of -activity-tick")

	config = saved
	config.LogLevel = "loud"
	assert.ErrorContains(t, validateAndNormalizeConfig(), "-log-level")

	config = saved
	config.LiveBuffer = -1
	assert.ErrorContains(t, validateAndNormalizeConfig(), "-live-buffer")

	config = saved
	config.Timeout = 0
	assert.Error(t, validateAndNormalizeConfig())
}
