package handlers

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/meetingd/meetingd/internal/meeting"
	"github.com/meetingd/meetingd/internal/storage"
)

// MeetingHandler exposes meeting control and history over HTTP. The machine
// is not reentrant, so every control call goes through one mutex.
type MeetingHandler struct {
	mu      sync.Mutex
	machine *meeting.Machine
	status  *meeting.StatusHandle
	db      *storage.MeetingDB
}

func NewMeetingHandler(machine *meeting.Machine, status *meeting.StatusHandle, db *storage.MeetingDB) *MeetingHandler {
	return &MeetingHandler{
		machine: machine,
		status:  status,
		db:      db,
	}
}

// startRequest is the optional JSON body for start/toggle.
type startRequest struct {
	Title string `json:"title"`
}

func (h *MeetingHandler) parseOptions(c *fiber.Ctx) *meeting.StartOptions {
	var req startRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			log.Printf("Ignoring malformed start request body: %v", err)
		}
	}
	if req.Title == "" {
		return nil
	}
	return &meeting.StartOptions{Title: req.Title}
}

// Start handles POST /meetings/start.
func (h *MeetingHandler) Start(c *fiber.Ctx) error {
	opts := h.parseOptions(c)

	h.mu.Lock()
	result, err := h.machine.Start(opts)
	h.mu.Unlock()
	if err != nil {
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_START_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"meeting_id": result.MeetingID,
		"audio_path": result.AudioPath,
		"message":    "Meeting recording started",
	})
}

// Stop handles POST /meetings/stop.
func (h *MeetingHandler) Stop(c *fiber.Ctx) error {
	h.mu.Lock()
	result, err := h.machine.Stop()
	h.mu.Unlock()
	if err != nil {
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_STOP_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"meeting_id":       result.MeetingID,
		"duration_seconds": result.DurationSeconds,
		"message":          "Meeting recording stopped, processing started",
	})
}

// Toggle handles POST /meetings/toggle.
func (h *MeetingHandler) Toggle(c *fiber.Ctx) error {
	opts := h.parseOptions(c)

	h.mu.Lock()
	outcome, err := h.machine.Toggle(opts)
	h.mu.Unlock()
	if err != nil {
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_TOGGLE_FAILED",
		})
	}

	if outcome.Started != nil {
		return c.JSON(fiber.Map{
			"action":     "started",
			"meeting_id": outcome.Started.MeetingID,
			"audio_path": outcome.Started.AudioPath,
		})
	}
	return c.JSON(fiber.Map{
		"action":           "stopped",
		"meeting_id":       outcome.Stopped.MeetingID,
		"duration_seconds": outcome.Stopped.DurationSeconds,
	})
}

// Status handles GET /meetings/status.
func (h *MeetingHandler) Status(c *fiber.Ctx) error {
	state := h.status.Get()
	return c.JSON(fiber.Map{
		"phase":            state.Phase,
		"meeting_id":       state.MeetingID,
		"started_at":       state.StartedAt,
		"title":            state.Title,
		"audio_path":       state.AudioPath,
		"last_error":       state.LastError,
		"recording":        state.Phase == meeting.PhaseRecording,
		"duration_seconds": state.DurationSeconds(),
	})
}

// List handles GET /meetings.
func (h *MeetingHandler) List(c *fiber.Ctx) error {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	meetings, err := h.db.List(limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(meetings)
}

// Get handles GET /meetings/:id.
func (h *MeetingHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid meeting id"})
	}

	rec, err := h.db.Get(id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if rec == nil {
		return c.Status(404).JSON(fiber.Map{"error": "Meeting not found"})
	}
	return c.JSON(rec)
}

// Transcript handles GET /meetings/:id/transcript, serving the transcript
// file when it exists and falling back to the persisted text.
func (h *MeetingHandler) Transcript(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid meeting id"})
	}

	rec, err := h.db.Get(id)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if rec == nil {
		return c.Status(404).JSON(fiber.Map{"error": "Meeting not found"})
	}

	if rec.TranscriptPath != "" {
		if content, err := os.ReadFile(rec.TranscriptPath); err == nil {
			return c.SendString(string(content))
		}
	}
	if rec.TranscriptText != "" {
		return c.SendString(rec.TranscriptText)
	}
	return c.Status(404).JSON(fiber.Map{"error": "No transcript available"})
}
