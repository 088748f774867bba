// Package audio extracts a derived audio track from a downloaded video via
// ffmpeg, the optional half of the extract worker's job (spec.md §4.6:
// "failure of audio extraction must not fail the phase").
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

const defaultTimeout = 10 * time.Minute

// Extract runs ffmpeg to pull the audio track out of videoPath into
// audioPath (expected extension .m4a, matching artifact.DerivedAudio's
// canonical path), adapted from the donor's ffprobe.go subprocess
// invocation pattern: exec.CommandContext with an explicit timeout so a
// hung or corrupt input cannot stall the worker pool indefinitely.
func Extract(ctx context.Context, videoPath, audioPath string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "aac",
		audioPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("audio: ffmpeg timed out extracting audio from %q", videoPath)
		}
		return fmt.Errorf("audio: ffmpeg failed extracting audio from %q: %w (%s)", videoPath, err, output)
	}
	return nil
}
