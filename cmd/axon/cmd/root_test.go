package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	// Then: it should show usage information
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "axon", "Help should mention program name")
	assert.Contains(t, output, "Usage:", "Help should show usage")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	// Given: a root command

	// When: executing with --version
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	// Then: it should show version
	require.NoError(t, err)
	output := buf.String()
	hasVersion := strings.Contains(output, ".") || strings.Contains(output, "dev")
	assert.True(t, hasVersion, "Version output should contain a version number or 'dev'")
	assert.Contains(t, output, "axon", "Version output should mention program name")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: a root command

	// When: checking available commands
	cmd := NewRootCmd()
	subcommands := cmd.Commands()

	// Then: the expected subcommands should exist
	var commandNames []string
	for _, subcmd := range subcommands {
		commandNames = append(commandNames, subcmd.Name())
	}

	assert.Contains(t, commandNames, "crawl", "Should have crawl subcommand")
	assert.Contains(t, commandNames, "daemon", "Should have daemon subcommand")
	assert.Contains(t, commandNames, "jobs", "Should have jobs subcommand")
	assert.Contains(t, commandNames, "delete", "Should have delete subcommand")
	assert.Contains(t, commandNames, "version", "Should have version subcommand")
}

func TestCrawlCmd_RequiresURL(t *testing.T) {
	// Given: a root command

	// When: executing crawl with no arguments
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"crawl"})

	err := cmd.Execute()

	// Then: it should fail with an argument error
	require.Error(t, err)
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	// Given: a root command

	// When: executing version --short
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version", "--short"})

	err := cmd.Execute()

	// Then: it should print only the version number
	require.NoError(t, err)
	output := strings.TrimSpace(buf.String())
	assert.NotEmpty(t, output)
	assert.NotContains(t, output, " ", "Short output should be a single token")
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// Given: a root command

	// When: executing version --json
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version", "--json"})

	err := cmd.Execute()

	// Then: it should print build info as JSON
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, `"version"`)
	assert.Contains(t, output, `"go_version"`)
}
