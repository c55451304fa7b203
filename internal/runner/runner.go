// Package runner implements the transport layer: one API call in, an
// opaque response body out. Two Runner implementations exist, HTTP and
// subprocess.
package runner

import (
	"context"
	"io"
)

// InputFile is a single named file attached to a call. At most one is
// supported by the subprocess runner; the HTTP runner supports
// any number as multipart parts.
type InputFile struct {
	Name   string
	Reader io.Reader
}

// Input is the generic shape of one API call: an app/action pair, string
// params, and optional file attachments.
type Input struct {
	App    string
	Action string
	Params map[string]string
	Files  map[string]InputFile
}

// Runner transports one Input to the backend and returns its response body.
// The caller is responsible for closing the returned ReadCloser.
type Runner interface {
	RunAction(ctx context.Context, in Input) (io.ReadCloser, error)
}
