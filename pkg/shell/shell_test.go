package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestShell(stdout, stderr *bytes.Buffer) *Shell {
	return New("sysprog> ", 10, strings.NewReader(""), stdout, stderr)
}

func TestExecuteSingleCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("echo hello")
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, 0, code)
	require.Equal(t, "hello\n", stdout.String())
}

func TestExecutePipeline(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("echo hello world | wc -w")
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, 0, code)
	require.Equal(t, "2\n", stdout.String())
}

func TestAndShortCircuitsOnFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("false && echo should-not-print")
	require.NoError(t, err)
	require.False(t, exit)
	require.NotEqual(t, 0, code)
	require.Empty(t, stdout.String())
}

func TestOrRunsOnFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("false || echo recovered")
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, 0, code)
	require.Equal(t, "recovered\n", stdout.String())
}

func TestRedirectionTruncatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	_, _, err := sh.ExecuteLine("echo first > " + path)
	require.NoError(t, err)
	_, _, err = sh.ExecuteLine("echo second > " + path)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second\n", string(contents))
}

func TestRedirectionAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	_, _, err := sh.ExecuteLine("echo first >> " + path)
	require.NoError(t, err)
	_, _, err = sh.ExecuteLine("echo second >> " + path)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(contents))
}

func TestCdChangesDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)

	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("cd " + dir)
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, 0, code)

	newWd, err := os.Getwd()
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	resolvedWd, err := filepath.EvalSymlinks(newWd)
	require.NoError(t, err)
	require.Equal(t, resolved, resolvedWd)
}

func TestCdRejectsWrongArgCount(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	_, code, err := sh.ExecuteLine("cd a b")
	require.Error(t, err)
	require.NotEqual(t, 0, code)

	var shellErr *Error
	require.ErrorAs(t, err, &shellErr)
	require.Equal(t, "cd", shellErr.Op)
}

func TestExecutingMissingBinaryReturnsWrappedError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	_, code, err := sh.ExecuteLine("this-binary-does-not-exist-anywhere")
	require.Error(t, err)
	require.NotEqual(t, 0, code)

	var shellErr *Error
	require.ErrorAs(t, err, &shellErr)
	require.Equal(t, "exec", shellErr.Op)
	require.Error(t, shellErr.Unwrap())
}

func TestExitAsSoleCommandRequestsExit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("exit 7")
	require.NoError(t, err)
	require.True(t, exit)
	require.Equal(t, 7, code)
}

func TestRunPrintsPromptBeforeEachLine(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := New("sysprog> ", 10, strings.NewReader("echo hi\nexit\n"), &stdout, &stderr)

	code := sh.Run()
	require.Equal(t, 0, code)
	require.Equal(t, "sysprog> hi\nsysprog> ", stdout.String())
}

func TestBackgroundCommandDoesNotBlock(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := newTestShell(&stdout, &stderr)

	exit, code, err := sh.ExecuteLine("sleep 0.05 &")
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, 0, code)
	require.Equal(t, 1, sh.background.Len())

	sh.Close()
	require.Equal(t, 0, sh.background.Len())
}
