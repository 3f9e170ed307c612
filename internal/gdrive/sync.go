package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// uploader is the slice of the Drive files API the syncer uses.
type uploader interface {
	create(ctx context.Context, name, folderID string, media io.Reader) (string, error)
	update(ctx context.Context, fileID string, media io.Reader) error
}

// Syncer mirrors the daily transcript exports into a Drive folder as Google
// Docs, one document per day.
type Syncer struct {
	files    uploader
	folderID string
	logger   *slog.Logger

	mu       sync.Mutex
	fileIDs  map[string]string
	uploaded map[string]time.Time
}

func NewSyncer(ctx context.Context, credPath, folderID string, logger *slog.Logger) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return newSyncer(driveFiles{svc: svc}, folderID, logger), nil
}

func newSyncer(files uploader, folderID string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		files:    files,
		folderID: folderID,
		logger:   logger.With("component", "gdrive"),
		fileIDs:  make(map[string]string),
		uploaded: make(map[string]time.Time),
	}
}

// Sync uploads localPath as the document for date. Unchanged files are
// skipped.
func (s *Syncer) Sync(ctx context.Context, localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	if last, ok := s.uploaded[date]; ok && !info.ModTime().After(last) {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		if err := s.files.update(ctx, fileID, f); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
	} else {
		fileID, err := s.files.create(ctx, "ghost-tutor-"+date, s.folderID, f)
		if err != nil {
			return fmt.Errorf("drive create: %w", err)
		}
		s.fileIDs[date] = fileID
	}
	s.uploaded[date] = info.ModTime()
	return nil
}

// Run syncs the export for the current day every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, pathFor func(time.Time) string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			date := now.Format("2006-01-02")
			if err := s.Sync(ctx, pathFor(now), date); err != nil {
				s.logger.Error("drive sync failed", "date", date, "error", err)
			}
		}
	}
}

type driveFiles struct {
	svc *drive.Service
}

func (d driveFiles) create(ctx context.Context, name, folderID string, media io.Reader) (string, error) {
	doc, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{folderID},
	}).Media(media).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveFiles) update(ctx context.Context, fileID string, media io.Reader) error {
	_, err := d.svc.Files.Update(fileID, &drive.File{}).Media(media).Context(ctx).Do()
	return err
}
