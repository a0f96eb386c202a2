package gtfs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"subwaywatch/internal/storage"
)

// Scheduler keeps the stop and route reference tables current.
type Scheduler struct {
	downloader *Downloader
	importer   *Importer
	db         *storage.DB
	logger     *slog.Logger
	loc        *time.Location

	// OnImport, when set, runs after every successful import.
	OnImport func(ctx context.Context)

	mu            sync.Mutex
	lastCheckDate string // YYYY-MM-DD of last check, one check per service day
}

// NewScheduler creates a Scheduler. Daily checks run at 3 AM in loc.
func NewScheduler(downloader *Downloader, db *storage.DB, loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		downloader: downloader,
		importer:   NewImporter(db, logger),
		db:         db,
		logger:     logger,
		loc:        loc,
	}
}

// EnsureData downloads and imports reference data if the database is empty.
// Called on startup.
func (s *Scheduler) EnsureData(ctx context.Context) error {
	if s.db.HasData(ctx) {
		s.logger.Info("station data already present")
		return nil
	}
	s.logger.Info("no station data found, performing initial import")
	return s.update(ctx)
}

// ImportFile parses and imports a local static GTFS archive.
func (s *Scheduler) ImportFile(ctx context.Context, path string) error {
	feed, err := ParseZip(path, s.logger)
	if err != nil {
		return err
	}
	return s.load(ctx, feed)
}

// Update forces a download and import regardless of feed headers.
func (s *Scheduler) Update(ctx context.Context) error {
	return s.update(ctx)
}

// CheckAndUpdate checks if the static feed changed and imports it if so.
// Only checks once per calendar day.
func (s *Scheduler) CheckAndUpdate(ctx context.Context) error {
	s.mu.Lock()
	today := time.Now().In(s.loc).Format("2006-01-02")
	if s.lastCheckDate == today {
		s.mu.Unlock()
		return nil
	}
	s.lastCheckDate = today
	s.mu.Unlock()

	lastModified, _ := s.db.GetMetadata(ctx, "last_modified")
	etag, _ := s.db.GetMetadata(ctx, "etag")

	result, err := s.downloader.Check(ctx, lastModified, etag)
	if err != nil {
		return err
	}
	if !result.NeedsUpdate {
		return nil
	}
	return s.update(ctx)
}

// StartBackground runs the 3 AM daily check until ctx is cancelled.
func (s *Scheduler) StartBackground(ctx context.Context) {
	s.logger.Info("static GTFS scheduler started")

	for {
		next := nextRun(time.Now(), s.loc)
		s.logger.Info("next static GTFS check scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if err := s.CheckAndUpdate(ctx); err != nil {
				s.logger.Error("background static GTFS update failed", "error", err)
			}
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("static GTFS scheduler stopped")
			return
		}
	}
}

// update performs a full download-parse-import cycle.
func (s *Scheduler) update(ctx context.Context) error {
	zipPath, lastModified, etag, err := s.downloader.Download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(zipPath)

	feed, err := ParseZip(zipPath, s.logger)
	if err != nil {
		return err
	}
	feed.LastModified = lastModified
	feed.ETag = etag
	return s.load(ctx, feed)
}

func (s *Scheduler) load(ctx context.Context, feed *Feed) error {
	if err := s.importer.Import(ctx, feed); err != nil {
		return err
	}
	if s.OnImport != nil {
		s.OnImport(ctx)
	}
	return nil
}

// nextRun returns the next 3:00 AM in loc strictly after now.
func nextRun(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
