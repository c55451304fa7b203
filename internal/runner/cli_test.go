package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpoint.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCLIRunnerArgsAndStdout(t *testing.T) {
	script := writeScript(t, `echo "$@"`)
	r := NewCLIRunner(script)

	body, err := r.RunAction(context.Background(), Input{
		App:    "testapp",
		Action: "testaction",
		Params: map[string]string{"key": "value"},
	})
	require.NoError(t, err)
	out, _ := io.ReadAll(body)
	body.Close()

	got := string(out)
	assert.Contains(t, got, "--json")
	assert.Contains(t, got, "--app testapp")
	assert.Contains(t, got, "--action testaction")
	assert.Contains(t, got, "--key value")
}

func TestCLIRunnerStdinFile(t *testing.T) {
	script := writeScript(t, `cat`)
	r := NewCLIRunner(script)

	body, err := r.RunAction(context.Background(), Input{
		App:    "files",
		Action: "upload",
		Files:  map[string]InputFile{"data": {Name: "f", Reader: strings.NewReader("file contents")}},
	})
	require.NoError(t, err)
	out, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "file contents", string(out))
}

func TestCLIRunnerRejectsMultipleFiles(t *testing.T) {
	r := NewCLIRunner("/bin/true")
	_, err := r.RunAction(context.Background(), Input{
		App:    "files",
		Action: "upload",
		Files: map[string]InputFile{
			"one": {Name: "a", Reader: strings.NewReader("a")},
			"two": {Name: "b", Reader: strings.NewReader("b")},
		},
	})
	var usage *InvalidUsage
	require.ErrorAs(t, err, &usage)
}

func TestCLIRunnerNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2; exit 3`)
	r := NewCLIRunner(script)

	_, err := r.RunAction(context.Background(), Input{App: "a", Action: "b"})
	require.Error(t, err)
	var nz *aerrors.NonZeroExit
	require.ErrorAs(t, err, &nz)
	assert.Equal(t, 3, nz.Code)
	assert.Contains(t, err.Error(), "boom")
}

func TestCLIRunnerMissingScript(t *testing.T) {
	r := NewCLIRunner("/nonexistent/script")
	_, err := r.RunAction(context.Background(), Input{App: "a", Action: "b"})
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
}
