// Package diarizer invokes the external speaker-diarization tool the
// diarize worker depends on (spec.md §4.6). Its internal algorithm is
// explicitly out of scope (spec.md §1); this package owns only the
// scratch-directory lifecycle and subprocess contract.
package diarizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const defaultTimeout = 2 * time.Hour

// ScratchDir creates the unique, world-writable working directory spec.md
// §4.6/§5 requires for a diarize job: "<runRoot>/diarize_<meetingId>_<timestampMillis>",
// world-writable regardless of process umask because the diarization tool
// runs as a subordinate container user this process does not control.
func ScratchDir(runRoot, meetingID string, timestampMillis int64) (string, error) {
	dir := filepath.Join(runRoot, fmt.Sprintf("diarize_%s_%d", meetingID, timestampMillis))
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return "", fmt.Errorf("diarizer: creating scratch dir %q: %w", dir, err)
	}
	// MkdirAll applies umask to the mode; force world-writable explicitly.
	if err := os.Chmod(dir, 0o777); err != nil {
		return "", fmt.Errorf("diarizer: setting permissions on %q: %w", dir, err)
	}
	return dir, nil
}

// Diarize runs the external diarization tool against audioPath inside
// scratchDir, writing its JSON output to outputPath. binary is the
// configured tool name (e.g. a pyannote-backed CLI wrapper).
func Diarize(ctx context.Context, binary, audioPath, scratchDir, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary,
		"--input", audioPath,
		"--workdir", scratchDir,
		"--output", outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("diarizer: %s timed out on %q", binary, audioPath)
		}
		return fmt.Errorf("diarizer: %s failed on %q: %w (%s)", binary, audioPath, err, output)
	}
	return nil
}

// Cleanup removes scratchDir. The diarize worker calls this on every exit
// path (success or failure), per spec.md §4.6.
func Cleanup(scratchDir string) error {
	if err := os.RemoveAll(scratchDir); err != nil {
		return fmt.Errorf("diarizer: removing scratch dir %q: %w", scratchDir, err)
	}
	return nil
}
