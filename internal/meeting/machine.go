package meeting

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/meetingd/meetingd/internal/audio"
	"github.com/meetingd/meetingd/internal/storage"
	"github.com/meetingd/meetingd/internal/types"
)

// Store is the persistence contract for meeting records. The machine only
// issues writes; it never reads records back.
type Store interface {
	Insert(title, audioPath string) (int64, error)
	UpdateStatus(id int64, status string) error
	Complete(id int64, transcriptPath, transcriptText string, durationSeconds int64) error
	Fail(id int64, errMsg string) error
}

// Transcriber submits audio to a transcription service and waits for the
// result. It owns its own polling and timeout; the machine makes exactly one
// attempt per meeting.
type Transcriber interface {
	SubmitAndPoll(ctx context.Context, path, language string) (*types.TranscriptionResult, error)
}

// CompressFunc compresses an audio file for transcription, returning the
// path of the compressed artifact. It fails if the external tool is missing
// or exits non-zero.
type CompressFunc func(path string) (string, error)

// Archiver optionally uploads a completed transcript to remote storage.
// Archive failures are never surfaced as meeting failures.
type Archiver interface {
	Upload(name string, result *types.TranscriptionResult) (string, error)
}

// StartResult is returned from starting a meeting.
type StartResult struct {
	MeetingID int64  `json:"meeting_id"`
	AudioPath string `json:"audio_path"`
}

// StopResult is returned from stopping a meeting.
type StopResult struct {
	MeetingID       int64 `json:"meeting_id"`
	DurationSeconds int64 `json:"duration_seconds"`
}

// ToggleOutcome reports which way a toggle went. Exactly one field is set.
type ToggleOutcome struct {
	Started *StartResult `json:"started,omitempty"`
	Stopped *StopResult  `json:"stopped,omitempty"`
}

// MachineConfig wires the machine's collaborators. Mic, System, Store,
// Transcriber, Compress, Status and Files are required; Hook and Archive are
// optional.
type MachineConfig struct {
	Mic         audio.Source
	System      audio.Source
	Store       Store
	Transcriber Transcriber
	Compress    CompressFunc
	Hook        PostMeetingHook
	Archive     Archiver
	Status      *StatusHandle
	Files       *storage.Files
	Language    string
	TargetRate  int
}

// Machine orchestrates the meeting lifecycle:
// start -> stop -> compress -> transcribe -> persist -> hook -> done.
//
// Start/Stop/Toggle are not reentrant; callers must serialize invocations.
// Post-processing after Stop runs in a detached goroutine that communicates
// progress exclusively through the status handle and the store.
type Machine struct {
	mic         audio.Source
	system      audio.Source
	store       Store
	transcriber Transcriber
	compress    CompressFunc
	hook        PostMeetingHook
	archive     Archiver
	status      *StatusHandle
	files       *storage.Files
	language    string
	targetRate  int

	wg sync.WaitGroup
}

func NewMachine(cfg MachineConfig) *Machine {
	rate := cfg.TargetRate
	if rate <= 0 {
		rate = 16000
	}
	return &Machine{
		mic:         cfg.Mic,
		system:      cfg.System,
		store:       cfg.Store,
		transcriber: cfg.Transcriber,
		compress:    cfg.Compress,
		hook:        cfg.Hook,
		archive:     cfg.Archive,
		status:      cfg.Status,
		files:       cfg.Files,
		language:    cfg.Language,
		targetRate:  rate,
	}
}

// Start begins a new meeting recording. Fails if one is already recording;
// a mic failure aborts the start while a system-audio failure only degrades
// to mic-only capture.
func (m *Machine) Start(opts *StartOptions) (*StartResult, error) {
	current := m.status.Get()
	if current.Phase == PhaseRecording {
		return nil, fmt.Errorf("meeting already in progress (id: %d), stop it first or use toggle", current.MeetingID)
	}

	title := ""
	if opts != nil {
		title = opts.Title
	}

	audioPath, err := m.files.NewAudioPath()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate audio path: %w", err)
	}

	meetingID, err := m.store.Insert(title, audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting record: %w", err)
	}

	if err := m.mic.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mic capture: %w", err)
	}
	if err := m.system.Start(); err != nil {
		log.Printf("WARNING: failed to start system audio: %v. Recording mic only.", err)
	}

	m.status.StartRecording(meetingID, title, audioPath)
	log.Printf("Meeting %d recording started: %s", meetingID, audioPath)

	return &StartResult{MeetingID: meetingID, AudioPath: audioPath}, nil
}

// Stop halts capture, mixes and writes the audio, then hands off to the
// background pipeline. It returns as soon as the WAV is on disk.
func (m *Machine) Stop() (*StopResult, error) {
	state := m.status.Get()
	if state.Phase != PhaseRecording {
		return nil, fmt.Errorf("no meeting recording in progress (current phase: %s)", state.Phase)
	}

	meetingID := state.MeetingID
	duration := state.DurationSeconds()
	audioPath := state.AudioPath
	title := state.Title

	micSamples, err := m.mic.Stop()
	if err != nil {
		log.Printf("WARNING: failed to stop mic: %v", err)
		micSamples = nil
	}
	micRate := m.mic.SampleRate()

	systemSamples, err := m.system.Stop()
	if err != nil {
		log.Printf("WARNING: failed to stop system audio: %v", err)
		systemSamples = nil
	}
	systemRate := m.system.SampleRate()

	if len(micSamples) == 0 && len(systemSamples) == 0 {
		m.status.SetError("no audio captured")
		if err := m.store.Fail(meetingID, "no audio captured"); err != nil {
			log.Printf("Failed to mark meeting %d as failed: %v", meetingID, err)
		}
		return nil, fmt.Errorf("no audio samples captured during meeting")
	}

	log.Printf("Meeting %d stopped: mic=%d samples (%dHz), system=%d samples (%dHz), duration=%ds",
		meetingID, len(micSamples), micRate, len(systemSamples), systemRate, duration)

	mixed := audio.Mix([][]float32{
		audio.Resample(micSamples, micRate, m.targetRate),
		audio.Resample(systemSamples, systemRate, m.targetRate),
	})

	if err := audio.WriteWAV(audioPath, mixed, m.targetRate); err != nil {
		msg := fmt.Sprintf("failed to write meeting audio: %v", err)
		m.status.SetError(msg)
		if ferr := m.store.Fail(meetingID, msg); ferr != nil {
			log.Printf("Failed to mark meeting %d as failed: %v", meetingID, ferr)
		}
		return nil, fmt.Errorf("%s", msg)
	}
	log.Printf("Meeting audio saved: %s (%d samples)", audioPath, len(mixed))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.process(meetingID, audioPath, title, duration)
	}()

	return &StopResult{MeetingID: meetingID, DurationSeconds: duration}, nil
}

// Toggle starts a meeting when idle, stops it when recording, and refuses
// while the pipeline is busy. There is no queued-toggle semantics.
func (m *Machine) Toggle(opts *StartOptions) (*ToggleOutcome, error) {
	switch m.status.Get().Phase {
	case PhaseRecording:
		stopped, err := m.Stop()
		if err != nil {
			return nil, err
		}
		return &ToggleOutcome{Stopped: stopped}, nil
	case PhaseIdle, PhaseCompleted, PhaseError:
		started, err := m.Start(opts)
		if err != nil {
			return nil, err
		}
		return &ToggleOutcome{Started: started}, nil
	default:
		return nil, fmt.Errorf("cannot toggle meeting while %s, please wait", m.status.Get().Phase)
	}
}

// Close stops any active sources and waits for an in-flight background
// pipeline to finish.
func (m *Machine) Close() {
	m.mic.Close()
	m.system.Close()
	m.wg.Wait()
}

// process runs the post-recording pipeline: compress -> transcribe ->
// persist -> archive -> hook. Phase transitions are published through the
// status handle so API readers can poll progress.
func (m *Machine) process(meetingID int64, audioPath, title string, duration int64) {
	m.status.SetPhase(PhaseCompressing)
	finalPath := audioPath
	if compressed, err := m.compress(audioPath); err != nil {
		log.Printf("WARNING: compression failed, keeping uncompressed audio: %v", err)
	} else {
		if err := os.Remove(audioPath); err != nil {
			log.Printf("Failed to delete original WAV: %v", err)
		}
		finalPath = compressed
	}

	m.status.SetPhase(PhaseTranscribing)
	if err := m.store.UpdateStatus(meetingID, string(PhaseTranscribing)); err != nil {
		log.Printf("Failed to update meeting %d status: %v", meetingID, err)
	}

	result, err := m.transcriber.SubmitAndPoll(context.Background(), finalPath, m.language)
	if err != nil {
		log.Printf("Meeting %d transcription failed: %v", meetingID, err)
		if ferr := m.store.Fail(meetingID, err.Error()); ferr != nil {
			log.Printf("Failed to mark meeting %d as failed: %v", meetingID, ferr)
		}
		m.status.SetError(err.Error())
		return
	}

	transcriptPath, err := m.files.WriteTranscript(finalPath, result.Text)
	if err != nil {
		log.Printf("Failed to write transcript file: %v", err)
	}
	if err := m.files.WriteMeta(finalPath, map[string]interface{}{
		"meeting_id":       meetingID,
		"title":            title,
		"duration_seconds": duration,
		"word_count":       len(strings.Fields(result.Text)),
		"language":         result.Language,
		"segments":         result.Segments,
		"created_at":       time.Now(),
	}); err != nil {
		log.Printf("Failed to write meeting metadata: %v", err)
	}

	if err := m.store.Complete(meetingID, transcriptPath, result.Text, duration); err != nil {
		log.Printf("Failed to mark meeting %d completed: %v", meetingID, err)
	}
	log.Printf("Meeting %d transcription complete: %d chars", meetingID, len(result.Text))

	if m.archive != nil {
		m.archiveResult(meetingID, title, result)
	}

	if m.hook != nil {
		m.status.SetPhase(PhaseRunningHook)
		hookResult := &Result{
			MeetingID:       meetingID,
			Title:           title,
			AudioPath:       finalPath,
			TranscriptPath:  transcriptPath,
			TranscriptText:  result.Text,
			DurationSeconds: duration,
		}
		if err := m.hook.Execute(hookResult); err != nil {
			log.Printf("WARNING: post-meeting hook failed: %v", err)
		}
	}

	m.status.Complete()
}

// archiveResult uploads the transcript to remote storage with retries.
// Failures only warn; the meeting is already completed at this point.
func (m *Machine) archiveResult(meetingID int64, title string, result *types.TranscriptionResult) {
	name := title
	if name == "" {
		name = fmt.Sprintf("meeting-%d", meetingID)
	}
	for attempt := 1; attempt <= 3; attempt++ {
		url, err := m.archive.Upload(name, result)
		if err == nil {
			log.Printf("Meeting %d transcript archived: %s", meetingID, url)
			return
		}
		log.Printf("Archive upload attempt %d/3 failed: %v", attempt, err)
		if attempt < 3 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
	}
	log.Printf("WARNING: archive upload failed after 3 attempts, transcript kept locally only")
}
