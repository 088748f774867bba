// Package downloader invokes the external video-download tool the
// download worker depends on (spec.md §4.6). The tool itself (its exact
// command line and supported site list) is an external collaborator,
// deliberately out of scope per spec.md §1; this package owns only the
// subprocess-invocation contract.
package downloader

import (
	"context"
	"os/exec"
	"time"

	"github.com/jonchurch/gnv-city-meetings/internal/pipelineerr"
)

// Downloader invokes an external command-line tool to fetch a video from
// sourceURL into destPath. The binary name is configurable so operators
// can point at whatever tool they have deployed (e.g. yt-dlp).
type Downloader struct {
	binary  string
	timeout time.Duration
}

func New(binary string, timeout time.Duration) *Downloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Downloader{binary: binary, timeout: timeout}
}

// Download runs the external tool, writing the fetched video to destPath.
// Exit-code and timeout failures are reported as transient
// (pipelineerr.Transient) so the job queue retries, matching spec.md
// §7's taxonomy for recoverable network/tool failures.
func (d *Downloader) Download(ctx context.Context, sourceURL, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary, "-o", destPath, sourceURL)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return pipelineerr.Transientf("downloader: %s timed out fetching %q", d.binary, sourceURL)
		}
		return pipelineerr.Transientf("downloader: %s failed for %q: %w (%s)", d.binary, sourceURL, err, output)
	}
	return nil
}
