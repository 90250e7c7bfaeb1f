package meeting

import (
	"testing"
	"time"
)

func TestStatusHandleStartsIdle(t *testing.T) {
	h := NewStatusHandle()
	state := h.Get()
	if state.Phase != PhaseIdle {
		t.Errorf("expected idle phase, got %s", state.Phase)
	}
	if state.StartedAt != nil {
		t.Error("expected no start time when idle")
	}
}

func TestStatusHandleStartRecording(t *testing.T) {
	h := NewStatusHandle()
	h.StartRecording(42, "standup", "/tmp/meeting.wav")

	state := h.Get()
	if state.Phase != PhaseRecording {
		t.Errorf("expected recording phase, got %s", state.Phase)
	}
	if state.MeetingID != 42 {
		t.Errorf("expected meeting id 42, got %d", state.MeetingID)
	}
	if state.Title != "standup" {
		t.Errorf("expected title standup, got %q", state.Title)
	}
	if state.StartedAt == nil {
		t.Fatal("expected start time to be stamped")
	}
}

func TestStatusHandleStartClearsPreviousError(t *testing.T) {
	h := NewStatusHandle()
	h.SetError("something broke")
	h.StartRecording(1, "", "/tmp/a.wav")

	state := h.Get()
	if state.LastError != "" {
		t.Errorf("expected error cleared on new recording, got %q", state.LastError)
	}
}

func TestStatusHandleSetError(t *testing.T) {
	h := NewStatusHandle()
	h.StartRecording(1, "", "/tmp/a.wav")
	h.SetError("transcription failed")

	state := h.Get()
	if state.Phase != PhaseError {
		t.Errorf("expected error phase, got %s", state.Phase)
	}
	if state.LastError != "transcription failed" {
		t.Errorf("expected error message preserved, got %q", state.LastError)
	}
	if state.MeetingID != 1 {
		t.Error("expected meeting id preserved through error")
	}
}

func TestStatusHandleReset(t *testing.T) {
	h := NewStatusHandle()
	h.StartRecording(7, "retro", "/tmp/b.wav")
	h.Reset()

	state := h.Get()
	if state.Phase != PhaseIdle {
		t.Errorf("expected idle after reset, got %s", state.Phase)
	}
	if state.MeetingID != 0 || state.Title != "" || state.StartedAt != nil {
		t.Error("expected reset to clear all fields")
	}
}

func TestDurationSeconds(t *testing.T) {
	var s State
	if s.DurationSeconds() != 0 {
		t.Error("expected 0 duration with no start time")
	}

	past := time.Now().Add(-3 * time.Second)
	s.StartedAt = &past
	if d := s.DurationSeconds(); d < 2 || d > 4 {
		t.Errorf("expected duration around 3s, got %d", d)
	}

	future := time.Now().Add(time.Hour)
	s.StartedAt = &future
	if s.DurationSeconds() != 0 {
		t.Error("expected clamped 0 duration for future start time")
	}
}
