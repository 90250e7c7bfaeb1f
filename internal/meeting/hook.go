package meeting

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Environment variables carrying meeting metadata into post-meeting hooks.
const (
	HookEnvMeetingID       = "MEETINGD_MEETING_ID"
	HookEnvMeetingTitle    = "MEETINGD_MEETING_TITLE"
	HookEnvAudioPath       = "MEETINGD_AUDIO_PATH"
	HookEnvTranscriptPath  = "MEETINGD_TRANSCRIPT_PATH"
	HookEnvDurationSeconds = "MEETINGD_DURATION_SECONDS"
)

// Result of a completed meeting, handed to hooks for post-processing.
type Result struct {
	MeetingID       int64
	Title           string
	AudioPath       string
	TranscriptPath  string
	TranscriptText  string
	DurationSeconds int64
}

// PostMeetingHook runs once per meeting after transcription succeeds, before
// the machine reports completion. Hook outcome never affects meeting state.
type PostMeetingHook interface {
	Execute(result *Result) error
}

// ShellCommandHook runs a user-supplied shell command. The transcript text
// is piped to the child's stdin (then closed to signal EOF) and meeting
// metadata is passed through environment variables. The child is killed when
// the timeout elapses. A non-zero exit is logged as a warning, not returned
// as an error; user automation bugs must not flag the meeting as failed.
type ShellCommandHook struct {
	command string
	timeout time.Duration
}

func NewShellCommandHook(command string, timeout time.Duration) *ShellCommandHook {
	return &ShellCommandHook{command: command, timeout: timeout}
}

func (h *ShellCommandHook) Execute(result *Result) error {
	log.Printf("Running post-meeting hook for meeting %d: %s", result.MeetingID, h.command)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.command)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", HookEnvMeetingID, result.MeetingID),
		fmt.Sprintf("%s=%s", HookEnvMeetingTitle, result.Title),
		fmt.Sprintf("%s=%s", HookEnvAudioPath, result.AudioPath),
		fmt.Sprintf("%s=%s", HookEnvTranscriptPath, result.TranscriptPath),
		fmt.Sprintf("%s=%d", HookEnvDurationSeconds, result.DurationSeconds),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open hook stdin: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start hook command: %w", err)
	}

	// Feed the transcript without blocking Wait; a hook that never reads
	// stdin would otherwise wedge us on a full pipe.
	go func() {
		stdin.Write([]byte(result.TranscriptText))
		stdin.Close()
	}()

	err = cmd.Wait()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		log.Printf("WARNING: post-meeting hook timed out after %s, process killed", h.timeout)
	case err != nil:
		log.Printf("WARNING: post-meeting hook exited with error: %v: %s",
			err, strings.TrimSpace(stderr.String()))
	default:
		if out := strings.TrimSpace(stdout.String()); out != "" {
			log.Printf("Post-meeting hook stdout: %s", out)
		}
		log.Printf("Post-meeting hook completed for meeting %d", result.MeetingID)
	}
	return nil
}
