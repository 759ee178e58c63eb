// Package janitor enforces the retention policy: session directories and
// their rows are deleted once they have not been updated for the TTL.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-clip/db"
	"github.com/nijaru/yt-clip/session"
)

type Store interface {
	GetSession(ctx context.Context, id string) (*db.SessionRecord, error)
	ExpiredSessions(ctx context.Context, before time.Time) ([]db.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}

// Sessions is the live session set of a running server. Its idle sessions
// hold directory locks the sweep could otherwise never take.
type Sessions interface {
	Expire(before time.Time) []string
}

// Report summarizes one sweep.
type Report struct {
	Removed []string `json:"removed"`
	Skipped []string `json:"skipped"`
	Orphans int      `json:"orphans"`
}

type Janitor struct {
	store    Store
	sessions Sessions
	baseDir  string
	ttl      time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Janitor)

// WithSessions lets each sweep first close the idle sessions of a running
// server.
func WithSessions(sessions Sessions) Option {
	return func(j *Janitor) { j.sessions = sessions }
}

func New(store Store, baseDir string, ttl time.Duration, opts ...Option) *Janitor {
	j := &Janitor{
		store:   store,
		baseDir: baseDir,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start runs Sweep on schedule until Stop is called.
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return errors.New("janitor already started")
	}

	c := cron.New(cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger())))
	_, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			logrus.WithError(err).Error("Retention sweep failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid retention schedule %q", schedule)
	}

	c.Start()
	j.cron = c
	logrus.WithFields(logrus.Fields{
		"schedule": schedule,
		"ttl":      j.ttl.String(),
	}).Info("Retention janitor started")
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// Sweep deletes expired sessions and orphaned directories under the base
// directory. Directories whose session lock is held are left alone.
func (j *Janitor) Sweep(ctx context.Context) (Report, error) {
	var report Report
	cutoff := j.now().Add(-j.ttl)

	if j.sessions != nil {
		j.sessions.Expire(cutoff)
	}

	expired, err := j.store.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return report, errors.Wrap(err, "error listing expired sessions")
	}

	for _, rec := range expired {
		logger := logrus.WithFields(logrus.Fields{
			"session": rec.ID,
			"dir":     rec.Dir,
		})

		removed, err := j.removeDir(rec.Dir)
		if err != nil {
			logger.WithError(err).Warn("Failed to remove session directory")
			report.Skipped = append(report.Skipped, rec.ID)
			continue
		}
		if !removed {
			logger.Debug("Session in use, skipping")
			report.Skipped = append(report.Skipped, rec.ID)
			continue
		}
		if err := j.store.DeleteSession(ctx, rec.ID); err != nil {
			logger.WithError(err).Warn("Failed to delete session record")
		}
		report.Removed = append(report.Removed, rec.ID)
	}

	orphans, err := j.sweepOrphans(ctx, cutoff)
	report.Orphans = orphans
	if err != nil {
		return report, err
	}

	if len(report.Removed) > 0 || report.Orphans > 0 {
		logrus.WithFields(logrus.Fields{
			"removed": len(report.Removed),
			"skipped": len(report.Skipped),
			"orphans": report.Orphans,
		}).Info("Retention sweep finished")
	}
	return report, nil
}

// sweepOrphans removes stale directories that have no session row, left by
// a crash or a store failure.
func (j *Janitor) sweepOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(j.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "error reading session base directory")
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		rec, err := j.store.GetSession(ctx, entry.Name())
		if err != nil || rec != nil {
			continue
		}

		removed, err := j.removeDir(filepath.Join(j.baseDir, entry.Name()))
		if err != nil {
			logrus.WithError(err).WithField("dir", entry.Name()).Warn("Failed to remove orphaned directory")
			continue
		}
		if removed {
			count++
		}
	}
	return count, nil
}

// removeDir deletes dir if its session lock can be taken. It reports false
// when the session is live.
func (j *Janitor) removeDir(dir string) (bool, error) {
	if !j.within(dir) {
		return false, errors.Errorf("refusing to remove %s outside %s", dir, j.baseDir)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return true, nil
	}

	lock := flock.New(filepath.Join(dir, session.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return false, errors.Wrap(err, "error locking session directory")
	}
	if !locked {
		return false, nil
	}
	defer lock.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return false, errors.Wrap(err, "error removing session directory")
	}
	return true, nil
}

func (j *Janitor) within(dir string) bool {
	rel, err := filepath.Rel(j.baseDir, dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
