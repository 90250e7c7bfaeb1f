package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/meetingd/meetingd/internal/types"
)

// DriveArchive uploads completed meeting transcripts to Google Drive under a
// dated folder tree (<folder>/<year>/<month>/<day>/).
type DriveArchive struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveArchive builds a Drive client from OAuth credentials and a
// previously saved token. A daemon cannot run the interactive consent flow,
// so a missing or invalid token file is an error.
func NewDriveArchive(credentialsFile, tokenFile, folderName string) (*DriveArchive, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read oauth token (run the setup flow first): %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	da := &DriveArchive{service: srv, folderName: folderName}
	if err := da.ensureRootFolder(); err != nil {
		return nil, err
	}
	return da, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Upload stores the transcript text and a metadata JSON in the dated folder
// for today, returning a link to the uploaded transcript.
func (da *DriveArchive) Upload(name string, result *types.TranscriptionResult) (string, error) {
	now := time.Now()
	folderID, err := da.ensureDateFolder(now)
	if err != nil {
		return "", err
	}

	baseName := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeName(name))

	txtFile := &drive.File{
		Name:    baseName + ".txt",
		Parents: []string{folderID},
	}
	created, err := da.service.Files.Create(txtFile).
		Media(strings.NewReader(result.Text)).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	meta := map[string]interface{}{
		"name":       name,
		"language":   result.Language,
		"word_count": len(strings.Fields(result.Text)),
		"segments":   result.Segments,
		"created_at": now,
	}
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")

	metaFile := &drive.File{
		Name:    baseName + "_meta.json",
		Parents: []string{folderID},
	}
	if _, err := da.service.Files.Create(metaFile).
		Media(strings.NewReader(string(metaJSON))).Do(); err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

func (da *DriveArchive) ensureRootFolder() error {
	id, err := da.findOrCreateFolder(da.folderName, "")
	if err != nil {
		return fmt.Errorf("unable to prepare archive folder: %w", err)
	}
	da.folderID = id
	return nil
}

// ensureDateFolder creates nested year/month/day folders under the root.
func (da *DriveArchive) ensureDateFolder(t time.Time) (string, error) {
	parent := da.folderID
	for _, part := range []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := da.findOrCreateFolder(part, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

func (da *DriveArchive) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", name)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := da.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	created, err := da.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// sanitizeName strips path separators and caps length so the meeting title
// is safe to use in a file name.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	result := replacer.Replace(name)
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
