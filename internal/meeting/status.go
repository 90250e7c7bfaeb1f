package meeting

import (
	"sync"
	"time"
)

// Phase is the lifecycle state of a meeting recording.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRecording    Phase = "recording"
	PhaseCompressing  Phase = "compressing"
	PhaseTranscribing Phase = "transcribing"
	PhaseRunningHook  Phase = "running_hook"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// StartOptions holds options for starting a meeting.
type StartOptions struct {
	Title string `json:"title"`
}

// State is the current meeting state, readable by API handlers while the
// machine's background pipeline writes it.
type State struct {
	Phase     Phase      `json:"phase"`
	MeetingID int64      `json:"meeting_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Title     string     `json:"title,omitempty"`
	AudioPath string     `json:"audio_path,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// DurationSeconds is the elapsed time since recording started. Only
// meaningful while StartedAt is set.
func (s *State) DurationSeconds() int64 {
	if s.StartedAt == nil {
		return 0
	}
	d := int64(time.Since(*s.StartedAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// StatusHandle is the shared cell through which the machine publishes
// lifecycle state to concurrent readers. Every mutation replaces the whole
// snapshot under one lock, so readers never observe a half-updated state.
type StatusHandle struct {
	mu    sync.Mutex
	state State
}

func NewStatusHandle() *StatusHandle {
	return &StatusHandle{state: State{Phase: PhaseIdle}}
}

// Get returns a snapshot of the current state.
func (h *StatusHandle) Get() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// StartRecording moves to the Recording phase, stamping the start time and
// clearing any previous error.
func (h *StatusHandle) StartRecording(meetingID int64, title, audioPath string) {
	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = State{
		Phase:     PhaseRecording,
		MeetingID: meetingID,
		StartedAt: &now,
		Title:     title,
		AudioPath: audioPath,
	}
}

func (h *StatusHandle) SetPhase(phase Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Phase = phase
}

// SetError forces the Error phase with a human-readable message.
func (h *StatusHandle) SetError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Phase = PhaseError
	h.state.LastError = msg
}

// Complete forces the Completed phase.
func (h *StatusHandle) Complete() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Phase = PhaseCompleted
}

// Reset returns the handle to its idle defaults.
func (h *StatusHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = State{Phase: PhaseIdle}
}
