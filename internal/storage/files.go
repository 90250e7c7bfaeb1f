package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Files manages the on-disk layout of meeting artifacts: one audio file and
// one transcript per meeting under the meetings directory, named from the
// capture start timestamp.
type Files struct {
	dir string
}

func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

func (f *Files) Dir() string {
	return f.dir
}

// NewAudioPath allocates a timestamped WAV path for a new meeting, appending
// a numeric suffix when two meetings start within the same second.
func (f *Files) NewAudioPath() (string, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create meetings directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(f.dir, fmt.Sprintf("meeting-%s.wav", timestamp))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}

	for i := 1; i < 100; i++ {
		alt := filepath.Join(f.dir, fmt.Sprintf("meeting-%s-%d.wav", timestamp, i))
		if _, err := os.Stat(alt); os.IsNotExist(err) {
			return alt, nil
		}
	}
	return path, nil
}

// WriteTranscript writes the transcript text as a sibling .txt of the audio
// file. The transcript path is returned even when the write fails, so
// callers can persist where the transcript was supposed to go.
func (f *Files) WriteTranscript(audioPath, text string) (string, error) {
	txtPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
	if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
		return txtPath, fmt.Errorf("failed to save transcript: %w", err)
	}
	return txtPath, nil
}

// WriteMeta writes a sibling _meta.json with meeting metadata (duration,
// word count, segments, ...).
func (f *Files) WriteMeta(audioPath string, meta map[string]interface{}) error {
	metaPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "_meta.json"

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}
