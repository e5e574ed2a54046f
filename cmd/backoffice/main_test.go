package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoretech/backoffice/internal/cmdutils"
)

func TestRootCmd(t *testing.T) {
	root := rootCmd(&options{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"version", "web", "housekeeper", "migrate"}, names)

	flag := root.PersistentFlags().Lookup("graceful-shutdown")
	require.NotNil(t, flag)
	assert.Equal(t, "1s", flag.DefValue)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer

	root := rootCmd(&options{})
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	executed, err := root.ExecuteC()
	require.NoError(t, err)
	assert.Equal(t, "version", executed.Name())
	assert.NotEmpty(t, executed.Annotations[skipShutdownDelay])
	assert.NotEmpty(t, out.String())
}

func TestConfigDirFlag(t *testing.T) {
	t.Setenv(cmdutils.ConfigDirEnv, "")

	root := rootCmd(&options{})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config-dir", "/srv/backoffice", "version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "/srv/backoffice", os.Getenv(cmdutils.ConfigDirEnv))
}
