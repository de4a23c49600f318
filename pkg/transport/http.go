// Package transport implements Spread's default URL download transport: a
// retrying HTTP(S) client satisfying the hashtask.Downloader interface. It is
// the concrete implementation the CLI wires in; the core (pkg/hashtask)
// depends only on the interface.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/compression"
	"github.com/spread-install/spread/pkg/job"
	"github.com/spread-install/spread/pkg/timeutil"
)

// HTTPDownloader downloads URL rule content over net/http, retrying
// transient failures with a fixed number of backoff attempts.
type HTTPDownloader struct {
	// Client is the HTTP client to use. If nil, http.DefaultClient is used.
	Client *http.Client
	// MaxAttempts bounds the number of download attempts before giving up.
	// If zero, defaultMaxAttempts is used.
	MaxAttempts int
	// BackoffBase is the delay before the first retry, doubling on each
	// subsequent attempt. If zero, defaultBackoffBase is used.
	BackoffBase time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = 250 * time.Millisecond
)

// Download implements hashtask.Downloader. It retries on transient I/O
// errors and 5xx responses (any other non-200 status fails at once),
// reporting progress via info as bytes are copied, and
// transparently unwraps a deflate Content-Encoding using pkg/compression
// (some internal mirrors Spread talks to serve pre-compressed archives to
// save bandwidth on slow links).
func (d *HTTPDownloader) Download(ctx context.Context, url string, w io.Writer, info *job.Info) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := d.BackoffBase
	if backoff <= 0 {
		backoff = defaultBackoffBase
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if info != nil {
				info.SetStatus(fmt.Sprintf("retrying download (attempt %d/%d): %s", attempt+1, maxAttempts, url))
			}
			if err := sleepWithCancellation(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		err := d.attempt(ctx, client, url, w, info)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(lastErr, "download failed after %d attempts", maxAttempts)
}

// attempt performs a single download attempt.
func (d *HTTPDownloader) attempt(ctx context.Context, client *http.Client, url string, w io.Writer, info *job.Info) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "unable to construct request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 5 {
		return errors.Errorf("server error: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(errPermanent, "unexpected status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "deflate" {
		body = compression.NewDecompressingReader(resp.Body)
	}

	total := uint64(resp.ContentLength)
	if resp.ContentLength < 0 {
		total = 0
	}

	var written uint64
	buf := make([]byte, 256*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info != nil && info.CheckStatus() {
			return errors.New("download cancelled")
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return errors.Wrap(werr, "unable to write downloaded data")
			}
			written += uint64(n)
			if info != nil {
				info.SetProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errors.Wrap(readErr, "connection interrupted")
		}
	}
}

// errPermanent marks errors that retrying will not fix (e.g. 404s).
var errPermanent = errors.New("permanent download failure")

// isRetryable reports whether err is worth retrying.
func isRetryable(err error) bool {
	return errors.Cause(err) != errPermanent
}

// sleepWithCancellation waits for d, returning early with ctx's error if ctx
// is cancelled first.
func sleepWithCancellation(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timeutil.StopAndDrainTimer(timer)

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
