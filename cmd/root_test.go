package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "once", "list", "test-notifier", "settings", "check", "migrate", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "harvester dev")
}

func TestSettingsSet_RequiresTwoArgs(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"settings", "set", "interval"})

	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestSelectSources(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Sources: []config.SourceConfig{
		{Name: "fia", Enabled: true},
		{Name: "larnaka", Enabled: false},
	}}

	all, err := selectSources(cfg, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "fia", all[0].Name)

	named, err := selectSources(cfg, "larnaka")
	require.NoError(t, err)
	assert.Equal(t, "larnaka", named[0].Name)

	_, err = selectSources(cfg, "weather")
	assert.Error(t, err)

	_, err = defaultSource(&config.Config{}, "")
	assert.Error(t, err)
}
