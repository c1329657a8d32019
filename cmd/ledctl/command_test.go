package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

const (
	deskAddr = "A4:C1:38:00:11:22"
	espAddr  = "24:0A:C4:00:00:01"
)

// execute runs the root command with args and returns what it wrote to stdout.
// Package-level flag variables are reset first so runs do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	devicesFormat = "table"
	scanFormat = "table"
	scanDuration = 10 * time.Second
	scanGoveeOnly = false
	serveListen = ""
	serveConnectAll = false
	require.NoError(t, rootCmd.PersistentFlags().Set("log-level", ""))
	require.NoError(t, rootCmd.PersistentFlags().Set("verbose", "false"))

	prevNoColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prevNoColor })

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

// writeConfig stores yaml in a temp file and returns its path
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}
