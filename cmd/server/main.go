package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"gopkg.in/yaml.v3"

	"github.com/meetingd/meetingd/internal/audio"
	"github.com/meetingd/meetingd/internal/cleanup"
	"github.com/meetingd/meetingd/internal/handlers"
	"github.com/meetingd/meetingd/internal/meeting"
	"github.com/meetingd/meetingd/internal/storage"
	"github.com/meetingd/meetingd/internal/transcription"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Meeting struct {
		Dir                       string `yaml:"dir"`
		SampleRate                int    `yaml:"sample_rate"`
		Language                  string `yaml:"language"`
		PostCommand               string `yaml:"post_command"`
		PostCommandTimeoutSeconds int    `yaml:"post_command_timeout_seconds"`
	} `yaml:"meeting"`

	Transcription struct {
		APIURL         string `yaml:"api_url"`
		TimeoutMinutes int    `yaml:"timeout_minutes"`
	} `yaml:"transcription"`

	Storage struct {
		Database string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`
}

func main() {
	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Keep logs in memory too, served at GET /logs
	logBuffer := &LogBuffer{lines: make([]string, 0, 1000)}
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	log.Println("Initializing components...")

	db, err := storage.NewMeetingDB(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	files := storage.NewFiles(config.Meeting.Dir)

	if !transcription.CheckFFmpeg() {
		log.Println("WARNING: ffmpeg not found - meeting audio will not be compressed")
	}

	transcriber := transcription.NewRemoteTranscriber(
		config.Transcription.APIURL,
		time.Duration(config.Transcription.TimeoutMinutes)*time.Minute,
	)

	var hook meeting.PostMeetingHook
	if config.Meeting.PostCommand != "" {
		hook = meeting.NewShellCommandHook(
			config.Meeting.PostCommand,
			time.Duration(config.Meeting.PostCommandTimeoutSeconds)*time.Second,
		)
		log.Printf("Post-meeting hook configured: %s", config.Meeting.PostCommand)
	}

	// Google Drive archive (optional - may fail if credentials not set up)
	var archive meeting.Archiver
	if _, err := os.Stat(config.GoogleDrive.CredentialsFile); err == nil {
		drive, err := storage.NewDriveArchive(
			config.GoogleDrive.CredentialsFile,
			config.GoogleDrive.TokenFile,
			config.GoogleDrive.FolderName,
		)
		if err != nil {
			log.Printf("WARNING: Google Drive not available: %v", err)
			log.Println("Transcripts will only be saved locally")
		} else {
			archive = drive
			log.Println("Google Drive archive enabled")
		}
	} else {
		log.Println("Google Drive credentials not found - saving locally only")
	}

	status := meeting.NewStatusHandle()
	machine := meeting.NewMachine(meeting.MachineConfig{
		Mic:         audio.NewMicSource(config.Meeting.SampleRate),
		System:      audio.NewSystemSource(config.Meeting.SampleRate),
		Store:       db,
		Transcriber: transcriber,
		Compress:    transcription.CompressToMP3,
		Hook:        hook,
		Archive:     archive,
		Status:      status,
		Files:       files,
		Language:    config.Meeting.Language,
		TargetRate:  config.Meeting.SampleRate,
	})
	defer machine.Close()

	cleanupScheduler := cleanup.NewScheduler(
		os.TempDir(),
		transcription.TempFilePrefix(),
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	app := fiber.New()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	meetingHandler := handlers.NewMeetingHandler(machine, status, db)
	statusStream := handlers.NewStatusStreamHandler(status)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/meetings/start", meetingHandler.Start)
	app.Post("/meetings/stop", meetingHandler.Stop)
	app.Post("/meetings/toggle", meetingHandler.Toggle)
	app.Get("/meetings/status", meetingHandler.Status)
	app.Get("/meetings", meetingHandler.List)
	app.Get("/meetings/:id", meetingHandler.Get)
	app.Get("/meetings/:id/transcript", meetingHandler.Transcript)

	app.Get("/ws/status", websocket.New(statusStream.Handle))

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST /meetings/start    - Start meeting recording")
	log.Println("   POST /meetings/stop     - Stop recording and transcribe")
	log.Println("   POST /meetings/toggle   - Toggle recording")
	log.Println("   GET  /meetings/status   - Current meeting status")
	log.Println("   GET  /meetings          - List meetings")
	log.Println("   GET  /meetings/:id      - Get a meeting")
	log.Println("   GET  /meetings/:id/transcript - Get transcript text")
	log.Println("   GET  /ws/status         - Live status WebSocket")
	log.Println("   GET  /logs              - View server logs")
	log.Println("   GET  /health            - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}

	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
