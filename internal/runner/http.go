package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
)

// HTTPRunner posts multipart form data to {baseURL}?app=...&action=....
// It optionally performs HTTP basic-auth, proxies
// through an HTTP proxy, and retries connection failures up to MaxRetries
// times with a fixed RetryDelay between attempts.
type HTTPRunner struct {
	BaseURL string
	Client  *http.Client

	// Basic-auth credentials for the Andromeda endpoint itself, distinct
	// from the session auth params injected by BackendSession.
	HTTPUser string
	HTTPPass string

	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// NewHTTPRunner builds an HTTPRunner with an http.Client configured for
// the optional proxy, so transport construction happens in one place.
func NewHTTPRunner(baseURL string, proxyURL *url.URL) *HTTPRunner {
	transport := &http.Transport{}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &HTTPRunner{
		BaseURL:    baseURL,
		Client:     &http.Client{Transport: transport},
		MaxRetries: 0,
		RetryDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}

func (r *HTTPRunner) buildURL(app, action string) string {
	v := url.Values{}
	v.Set("app", app)
	v.Set("action", action)
	return r.BaseURL + "?" + v.Encode()
}

func (r *HTTPRunner) buildBody(in Input) (contentType string, body io.Reader, err error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range in.Params {
		if err := w.WriteField(k, v); err != nil {
			return "", nil, err
		}
	}
	for field, f := range in.Files {
		part, err := w.CreateFormFile(field, f.Name)
		if err != nil {
			return "", nil, err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return "", nil, err
		}
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), buf, nil
}

// RunAction implements Runner.
func (r *HTTPRunner) RunAction(ctx context.Context, in Input) (io.ReadCloser, error) {
	attempts := r.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			debug.Debugf("runner.http", "retrying %s.%s (attempt %d/%d) after: %v", in.App, in.Action, attempt+1, attempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.RetryDelay):
			}
		}
		body, err := r.doRequest(ctx, in)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if _, retryable := err.(*ConnectionError); !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *HTTPRunner) doRequest(ctx context.Context, in Input) (io.ReadCloser, error) {
	contentType, bodyReader, err := r.buildBody(in)
	if err != nil {
		return nil, err
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if r.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, r.buildURL(in.App, in.Action), bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if r.HTTPUser != "" {
		req.SetBasicAuth(r.HTTPUser, r.HTTPPass)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &EndpointError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &EndpointError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp.Body, nil
}

var _ fmt.Stringer = (*HTTPRunner)(nil)

// String identifies this runner for logging.
func (r *HTTPRunner) String() string { return "HTTPRunner(" + r.BaseURL + ")" }
