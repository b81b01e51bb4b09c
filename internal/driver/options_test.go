package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsNoArgsShowsHelp(t *testing.T) {
	opt, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.True(t, opt.Help)
}

func TestParseArgsLexVerbose(t *testing.T) {
	opt, err := ParseArgs([]string{"lex", "--verbose", "main.tml"})
	require.NoError(t, err)
	assert.Equal(t, CmdLex, opt.Cmd)
	assert.True(t, opt.Verbose)
	assert.Equal(t, "main.tml", opt.Src)
}

func TestParseArgsBuildFlags(t *testing.T) {
	opt, err := ParseArgs([]string{"build", "--emit-ir", "--release", "--no-cache", "main.tml"})
	require.NoError(t, err)
	assert.Equal(t, CmdBuild, opt.Cmd)
	assert.True(t, opt.EmitIR)
	assert.True(t, opt.Release)
	assert.True(t, opt.NoCache)
	assert.Equal(t, "main.tml", opt.Src)
}

func TestParseArgsRunCollectsTrailingArgs(t *testing.T) {
	opt, err := ParseArgs([]string{"run", "--coverage", "main.tml", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, CmdRun, opt.Cmd)
	assert.True(t, opt.Coverage)
	assert.Equal(t, "main.tml", opt.Src)
	assert.Equal(t, []string{"a", "b"}, opt.Args)
}

func TestParseArgsFmtCheck(t *testing.T) {
	opt, err := ParseArgs([]string{"fmt", "--check", "main.tml"})
	require.NoError(t, err)
	assert.Equal(t, CmdFmt, opt.Cmd)
	assert.True(t, opt.Check)
}

func TestParseArgsExplainRequiresOneCode(t *testing.T) {
	_, err := ParseArgs([]string{"explain"})
	assert.Error(t, err)

	opt, err := ParseArgs([]string{"explain", "T001"})
	require.NoError(t, err)
	assert.Equal(t, "T001", opt.Code)
}

func TestParseArgsInitFlags(t *testing.T) {
	opt, err := ParseArgs([]string{"init", "--lib", "--bin", "./app", "--name", "demo", "--no-src"})
	require.NoError(t, err)
	assert.True(t, opt.Lib)
	assert.Equal(t, "./app", opt.Bin)
	assert.Equal(t, "demo", opt.Name)
	assert.True(t, opt.NoSrc)
}

func TestParseArgsTestThreads(t *testing.T) {
	opt, err := ParseArgs([]string{"test", "--test-threads=4", "--bench", "foo"})
	require.NoError(t, err)
	assert.Equal(t, 4, opt.TestThreads)
	assert.True(t, opt.Bench)
	assert.Equal(t, []string{"foo"}, opt.Args)

	_, err = ParseArgs([]string{"test", "--test-threads=0"})
	assert.Error(t, err)
}

func TestParseArgsUnknownCommand(t *testing.T) {
	_, err := ParseArgs([]string{"frobnicate"})
	assert.Error(t, err)
}

func TestParseArgsUnexpectedFlagRejected(t *testing.T) {
	_, err := ParseArgs([]string{"check", "--bogus", "main.tml"})
	assert.Error(t, err)
}
