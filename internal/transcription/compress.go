package transcription

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// tempPrefix marks compression temp files so the cleanup scheduler can
// recognize stale ones.
const tempPrefix = "meetingd_compress_"

// CheckFFmpeg reports whether ffmpeg is available on the system.
func CheckFFmpeg() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// CompressToMP3 compresses an audio file to 64kbps mono MP3, a good rate for
// speech. The result replaces the input's extension (meeting-X.wav ->
// meeting-X.mp3); the input file itself is left in place for the caller to
// delete.
func CompressToMP3(inputPath string) (string, error) {
	if !CheckFFmpeg() {
		return "", fmt.Errorf("ffmpeg is required for audio compression but was not found")
	}

	tempPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s%s.mp3", tempPrefix, uuid.New().String()))

	cmd := exec.Command("ffmpeg",
		"-i", inputPath,
		"-vn", // audio only
		"-codec:a", "libmp3lame",
		"-b:a", "64k",
		"-ac", "1",
		"-y",
		tempPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("ffmpeg compression failed: %v\nOutput: %s", err, string(output))
	}

	finalPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to move compressed file: %w", err)
	}

	return finalPath, nil
}

// TempFilePrefix exposes the compression temp-file prefix for cleanup.
func TempFilePrefix() string {
	return tempPrefix
}
