package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
)

// CLIRunner invokes a local script as the backend endpoint, passing
// --json, --<param> <value> flags, and at most one input file piped on
// stdin.
type CLIRunner struct {
	ScriptPath string
	Timeout    time.Duration
}

func NewCLIRunner(scriptPath string) *CLIRunner {
	return &CLIRunner{ScriptPath: scriptPath, Timeout: 30 * time.Second}
}

// RunAction implements Runner.
func (r *CLIRunner) RunAction(ctx context.Context, in Input) (io.ReadCloser, error) {
	if len(in.Files) > 1 {
		return nil, &InvalidUsage{Reason: "subprocess runner accepts at most one input file"}
	}

	args := []string{"--json", "--app", in.App, "--action", in.Action}
	for k, v := range in.Params {
		args = append(args, "--"+k, v)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(callCtx, r.ScriptPath, args...)
	for _, f := range in.Files {
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return nil, err
		}
		cmd.Stdin = bytes.NewReader(data)
		break
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%w: %s", &aerrors.NonZeroExit{Code: exitErr.ExitCode()}, stderr.String())
		}
		return nil, &ConnectionError{Cause: err}
	}
	return io.NopCloser(bytes.NewReader(stdout.Bytes())), nil
}
