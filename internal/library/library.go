package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"clypse/internal/database"
	"clypse/internal/filesystem"
	"clypse/internal/logging"
	"clypse/internal/media"
)

// EventVideoDeleted is published after an entry is removed.
const EventVideoDeleted = "video:deleted"

// Store is the catalog access the service needs.
type Store interface {
	List(ctx context.Context) ([]database.Video, error)
	GetByUUID(ctx context.Context, id string) (*database.Video, error)
	DeleteByFilename(ctx context.Context, fileName string) (*database.Video, error)
}

// Notifier receives realtime events.
type Notifier interface {
	Publish(eventType string, payload interface{})
}

// Entry is the API view of a catalog entry.
type Entry struct {
	UUID             string    `json:"uuid"`
	Title            string    `json:"title"`
	FileName         string    `json:"file_name"`
	OriginalFileName string    `json:"original_file_name"`
	Thumbnail        string    `json:"thumbnail"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	CreatedAt        time.Time `json:"created_at"`
	ShareURL         string    `json:"share_url"`
	StreamingURL     string    `json:"streaming_url"`
}

// DeletedPayload is the body of a video:deleted notification.
type DeletedPayload struct {
	UUID string `json:"uuid"`
}

// ShareURL is the public page path for an entry.
func ShareURL(id string) string { return "/share/" + id }

// StreamingURL is the byte-range stream path for an entry.
func StreamingURL(id string) string { return "/s/" + id }

// NewEntry builds the API view of v.
func NewEntry(v *database.Video) Entry {
	return Entry{
		UUID:             v.UUID,
		Title:            v.Title,
		FileName:         v.FileName,
		OriginalFileName: v.OriginalFileName,
		Thumbnail:        v.Thumbnail,
		Width:            v.Width,
		Height:           v.Height,
		CreatedAt:        v.CreatedAt,
		ShareURL:         ShareURL(v.UUID),
		StreamingURL:     StreamingURL(v.UUID),
	}
}

// Service reads and deletes catalog entries.
type Service struct {
	store         Store
	videosDir     string
	thumbnailsDir string
	notifier      Notifier
}

// New creates a Service. notifier may be nil.
func New(store Store, videosDir, thumbnailsDir string, notifier Notifier) *Service {
	return &Service{
		store:         store,
		videosDir:     videosDir,
		thumbnailsDir: thumbnailsDir,
		notifier:      notifier,
	}
}

// List returns every entry, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	videos, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(videos))
	for i := range videos {
		entries = append(entries, NewEntry(&videos[i]))
	}
	return entries, nil
}

// Get returns one entry. Unknown ids return database.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*database.Video, error) {
	return s.store.GetByUUID(ctx, id)
}

// VideoPath is the on-disk location of a published file.
func (s *Service) VideoPath(v *database.Video) string {
	return filepath.Join(s.videosDir, filepath.Base(v.FileName))
}

// RemoveByFilename deletes the entry stored under fileName along with its
// thumbnail and notifies subscribers. It reports false if no entry matched.
func (s *Service) RemoveByFilename(ctx context.Context, fileName string) (bool, error) {
	v, err := s.store.DeleteByFilename(ctx, fileName)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete %s from catalog: %w", fileName, err)
	}

	thumb := filepath.Join(s.thumbnailsDir, media.ThumbnailName(v.FileName))
	if err := filesystem.RemoveIfExists(thumb); err != nil {
		logging.Warn("Failed to delete thumbnail %s: %v", thumb, err)
	}

	logging.WithFields(logging.Fields{"uuid": v.UUID, "file": v.FileName}).Info("Removed from catalog")

	if s.notifier != nil {
		s.notifier.Publish(EventVideoDeleted, DeletedPayload{UUID: v.UUID})
	}
	return true, nil
}
