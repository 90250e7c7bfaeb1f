package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// MeetingRecord is a persisted meeting row.
type MeetingRecord struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title,omitempty"`
	Status          string     `json:"status"`
	AudioPath       string     `json:"audio_path"`
	TranscriptPath  string     `json:"transcript_path,omitempty"`
	TranscriptText  string     `json:"transcript_text,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// MeetingDB persists meeting records in SQLite.
type MeetingDB struct {
	db *sql.DB
}

// NewMeetingDB opens (and if needed creates) the meetings database.
func NewMeetingDB(dbPath string) (*MeetingDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS meetings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		status TEXT NOT NULL,
		audio_path TEXT NOT NULL,
		transcript_path TEXT,
		transcript_text TEXT,
		duration_seconds INTEGER,
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_meetings_started_at ON meetings(started_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create meetings table: %w", err)
	}

	return &MeetingDB{db: db}, nil
}

// Insert creates a new meeting record in the recording state and returns
// its ID.
func (m *MeetingDB) Insert(title, audioPath string) (int64, error) {
	res, err := m.db.Exec(
		`INSERT INTO meetings (title, status, audio_path, started_at) VALUES (?, 'recording', ?, ?)`,
		nullable(title), audioPath, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meeting: %w", err)
	}
	return res.LastInsertId()
}

// UpdateStatus sets the meeting's status string.
func (m *MeetingDB) UpdateStatus(id int64, status string) error {
	if _, err := m.db.Exec(`UPDATE meetings SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("failed to update meeting status: %w", err)
	}
	return nil
}

// Complete marks the meeting completed with its transcript and duration.
func (m *MeetingDB) Complete(id int64, transcriptPath, transcriptText string, durationSeconds int64) error {
	_, err := m.db.Exec(
		`UPDATE meetings SET status = 'completed', transcript_path = ?, transcript_text = ?,
		 duration_seconds = ?, completed_at = ? WHERE id = ?`,
		transcriptPath, transcriptText, durationSeconds, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete meeting: %w", err)
	}
	return nil
}

// Fail marks the meeting failed with an error message.
func (m *MeetingDB) Fail(id int64, errMsg string) error {
	_, err := m.db.Exec(
		`UPDATE meetings SET status = 'error', error = ?, completed_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark meeting as failed: %w", err)
	}
	return nil
}

// Get returns a meeting by ID, or nil if it does not exist.
func (m *MeetingDB) Get(id int64) (*MeetingRecord, error) {
	row := m.db.QueryRow(
		`SELECT id, title, status, audio_path, transcript_path, transcript_text,
		 duration_seconds, started_at, completed_at, error
		 FROM meetings WHERE id = ?`, id,
	)
	rec, err := scanMeeting(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return rec, nil
}

// List returns meetings, newest first.
func (m *MeetingDB) List(limit int) ([]*MeetingRecord, error) {
	rows, err := m.db.Query(
		`SELECT id, title, status, audio_path, transcript_path, transcript_text,
		 duration_seconds, started_at, completed_at, error
		 FROM meetings ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*MeetingRecord
	for rows.Next() {
		rec, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, rec)
	}
	return meetings, rows.Err()
}

// Close closes the database connection.
func (m *MeetingDB) Close() error {
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMeeting(row rowScanner) (*MeetingRecord, error) {
	var (
		rec            MeetingRecord
		title          sql.NullString
		transcriptPath sql.NullString
		transcriptText sql.NullString
		duration       sql.NullInt64
		completedAt    sql.NullTime
		errMsg         sql.NullString
	)

	err := row.Scan(&rec.ID, &title, &rec.Status, &rec.AudioPath, &transcriptPath,
		&transcriptText, &duration, &rec.StartedAt, &completedAt, &errMsg)
	if err != nil {
		return nil, err
	}

	rec.Title = title.String
	rec.TranscriptPath = transcriptPath.String
	rec.TranscriptText = transcriptText.String
	rec.DurationSeconds = duration.Int64
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	rec.Error = errMsg.String
	return &rec, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
