package meeting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meetingd/meetingd/internal/storage"
	"github.com/meetingd/meetingd/internal/types"
)

// fakeSource is a canned audio source for pipeline tests.
type fakeSource struct {
	samples  []float32
	rate     int
	active   bool
	startErr error
	stopErr  error
}

func (f *fakeSource) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeSource) Stop() ([]float32, error) {
	f.active = false
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.samples, nil
}

func (f *fakeSource) IsActive() bool  { return f.active }
func (f *fakeSource) SampleRate() int { return f.rate }
func (f *fakeSource) Close()          {}

// fakeStore records persistence calls.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	statuses  []string
	completed bool
	failed    bool
	failMsg   string
	text      string
	duration  int64
}

func (s *fakeStore) Insert(title, audioPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) UpdateStatus(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) Complete(id int64, transcriptPath, transcriptText string, durationSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	s.text = transcriptText
	s.duration = durationSeconds
	return nil
}

func (s *fakeStore) Fail(id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	s.failMsg = errMsg
	return nil
}

// fakeTranscriber returns a canned result or error.
type fakeTranscriber struct {
	result *types.TranscriptionResult
	err    error
}

func (f *fakeTranscriber) SubmitAndPoll(ctx context.Context, path, language string) (*types.TranscriptionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeHook struct {
	mu     sync.Mutex
	called bool
	result *Result
	err    error
}

func (f *fakeHook) Execute(result *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.result = result
	return f.err
}

func failCompress(path string) (string, error) {
	return "", fmt.Errorf("ffmpeg not available")
}

func newTestMachine(t *testing.T, cfg MachineConfig) (*Machine, *StatusHandle, *fakeStore) {
	t.Helper()
	if cfg.Status == nil {
		cfg.Status = NewStatusHandle()
	}
	if cfg.Store == nil {
		cfg.Store = &fakeStore{}
	}
	if cfg.Files == nil {
		cfg.Files = storage.NewFiles(t.TempDir())
	}
	if cfg.Mic == nil {
		cfg.Mic = &fakeSource{rate: 16000}
	}
	if cfg.System == nil {
		cfg.System = &fakeSource{rate: 16000}
	}
	if cfg.Transcriber == nil {
		cfg.Transcriber = &fakeTranscriber{result: &types.TranscriptionResult{Text: "ok"}}
	}
	if cfg.Compress == nil {
		cfg.Compress = failCompress
	}
	return NewMachine(cfg), cfg.Status, cfg.Store.(*fakeStore)
}

func TestStopWhileIdleFails(t *testing.T) {
	m, status, _ := newTestMachine(t, MachineConfig{})
	if _, err := m.Stop(); err == nil {
		t.Error("expected error stopping an idle machine")
	}
	if status.Get().Phase != PhaseIdle {
		t.Error("expected phase unchanged after rejected stop")
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: []float32{0.1}}
	m, _, _ := newTestMachine(t, MachineConfig{Mic: mic})

	if _, err := m.Start(nil); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := m.Start(nil); err == nil {
		t.Error("expected error starting while already recording")
	}
}

func TestStartFailsWhenMicFails(t *testing.T) {
	mic := &fakeSource{rate: 16000, startErr: fmt.Errorf("no input device")}
	m, status, _ := newTestMachine(t, MachineConfig{Mic: mic})

	if _, err := m.Start(nil); err == nil {
		t.Error("expected start to fail when mic fails")
	}
	if status.Get().Phase != PhaseIdle {
		t.Error("expected phase unchanged after failed start")
	}
}

func TestStartSurvivesSystemAudioFailure(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: []float32{0.1}}
	system := &fakeSource{rate: 16000, startErr: fmt.Errorf("no pipewire")}
	m, status, _ := newTestMachine(t, MachineConfig{Mic: mic, System: system})

	if _, err := m.Start(nil); err != nil {
		t.Fatalf("expected mic-only start to succeed, got %v", err)
	}
	if status.Get().Phase != PhaseRecording {
		t.Error("expected recording phase after mic-only start")
	}
}

func TestStopWithNoAudioFails(t *testing.T) {
	m, status, store := newTestMachine(t, MachineConfig{})

	if _, err := m.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Stop(); err == nil {
		t.Error("expected error when no audio was captured")
	}

	if status.Get().Phase != PhaseError {
		t.Errorf("expected error phase, got %s", status.Get().Phase)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.failed {
		t.Error("expected meeting marked failed in store")
	}
	if store.failMsg != "no audio captured" {
		t.Errorf("unexpected failure message: %q", store.failMsg)
	}
}

func TestToggleRefusedWhileProcessing(t *testing.T) {
	m, status, _ := newTestMachine(t, MachineConfig{})
	status.SetPhase(PhaseCompressing)

	if _, err := m.Toggle(nil); err == nil {
		t.Error("expected toggle refused while compressing")
	}
	if status.Get().Phase != PhaseCompressing {
		t.Error("expected phase unchanged after refused toggle")
	}
}

func TestToggleStartsAndStops(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: []float32{0.1, 0.2}}
	m, _, _ := newTestMachine(t, MachineConfig{Mic: mic})
	defer m.Close()

	outcome, err := m.Toggle(&StartOptions{Title: "standup"})
	if err != nil {
		t.Fatalf("toggle start failed: %v", err)
	}
	if outcome.Started == nil || outcome.Stopped != nil {
		t.Fatal("expected toggle to report a start")
	}

	outcome, err = m.Toggle(nil)
	if err != nil {
		t.Fatalf("toggle stop failed: %v", err)
	}
	if outcome.Stopped == nil || outcome.Started != nil {
		t.Fatal("expected toggle to report a stop")
	}
}

func TestFullPipeline(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: make([]float32, 32000)}
	for i := range mic.samples {
		mic.samples[i] = 0.1
	}
	hook := &fakeHook{}
	transcriber := &fakeTranscriber{result: &types.TranscriptionResult{
		Text:     "hello world",
		Language: "en",
		Segments: []types.Segment{{Start: 0, End: 2, Text: "hello world"}},
	}}
	dir := t.TempDir()

	m, status, store := newTestMachine(t, MachineConfig{
		Mic:         mic,
		Files:       storage.NewFiles(dir),
		Transcriber: transcriber,
		Hook:        hook,
		TargetRate:  16000,
	})

	if _, err := m.Start(&StartOptions{Title: "planning"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Pretend the meeting has been running for two seconds.
	past := time.Now().Add(-2 * time.Second)
	status.mu.Lock()
	status.state.StartedAt = &past
	status.mu.Unlock()

	result, err := m.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.DurationSeconds < 1 || result.DurationSeconds > 3 {
		t.Errorf("expected duration around 2s, got %d", result.DurationSeconds)
	}

	m.wg.Wait()

	if status.Get().Phase != PhaseCompleted {
		t.Errorf("expected completed phase, got %s (%s)", status.Get().Phase, status.Get().LastError)
	}

	store.mu.Lock()
	if !store.completed {
		t.Error("expected meeting completed in store")
	}
	if store.text != "hello world" {
		t.Errorf("expected transcript persisted, got %q", store.text)
	}
	store.mu.Unlock()

	hook.mu.Lock()
	if !hook.called {
		t.Error("expected post-meeting hook to run")
	} else if hook.result.TranscriptText != "hello world" {
		t.Errorf("expected hook to receive transcript, got %q", hook.result.TranscriptText)
	}
	hook.mu.Unlock()

	// Compression failed, so the WAV survives with a sibling transcript.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read meetings dir: %v", err)
	}
	var wavFound, txtFound, metaFound bool
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), "_meta.json"):
			metaFound = true
		case filepath.Ext(e.Name()) == ".wav":
			wavFound = true
		case filepath.Ext(e.Name()) == ".txt":
			txtFound = true
		}
	}
	if !wavFound || !txtFound || !metaFound {
		t.Errorf("expected wav, txt and meta files, got wav=%v txt=%v meta=%v", wavFound, txtFound, metaFound)
	}
}

func TestTranscriptionFailureMarksError(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: []float32{0.1, 0.2, 0.3}}
	transcriber := &fakeTranscriber{err: fmt.Errorf("service unavailable")}

	m, status, store := newTestMachine(t, MachineConfig{Mic: mic, Transcriber: transcriber})

	if _, err := m.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	m.wg.Wait()

	if status.Get().Phase != PhaseError {
		t.Errorf("expected error phase, got %s", status.Get().Phase)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.failed {
		t.Error("expected meeting marked failed in store")
	}
}

func TestHookFailureDoesNotFailMeeting(t *testing.T) {
	mic := &fakeSource{rate: 16000, samples: []float32{0.1}}
	hook := &fakeHook{err: fmt.Errorf("hook exploded")}

	m, status, store := newTestMachine(t, MachineConfig{Mic: mic, Hook: hook})

	if _, err := m.Start(nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	m.wg.Wait()

	if status.Get().Phase != PhaseCompleted {
		t.Errorf("expected completed phase despite hook failure, got %s", status.Get().Phase)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.completed {
		t.Error("expected meeting completed despite hook failure")
	}
}
