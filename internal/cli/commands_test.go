package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"run", "warm", "publish", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommand_VerboseFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)
}

func TestRootCommand_SilencesUsageOnErrors(t *testing.T) {
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCommand_VersionFlagUsesVersionLine(t *testing.T) {
	// --version is handled by cobra's own flag, not an os.Args scan, and
	// renders the same line as the version subcommand.
	require.NotEmpty(t, rootCmd.Version)

	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, versionLine()+"\n", out.String())
}

func TestPublishCommand_RequiresExactlyOneArg(t *testing.T) {
	assert.Error(t, publishCmd.Args(publishCmd, nil))
	assert.Error(t, publishCmd.Args(publishCmd, []string{"a", "b"}))
	assert.NoError(t, publishCmd.Args(publishCmd, []string{"a"}))
}

func TestRunCommand_AcceptsNoArgs(t *testing.T) {
	assert.NoError(t, runCmd.Args(runCmd, nil))
	assert.Error(t, runCmd.Args(runCmd, []string{"extra"}))
}
