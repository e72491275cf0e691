package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

// QueueFile persists the alert queue as a JSON array, rewritten wholesale
// on every save.
type QueueFile struct {
	path   string
	logger zerolog.Logger
}

// NewQueueFile creates a queue file adapter for path.
func NewQueueFile(path string, logger zerolog.Logger) *QueueFile {
	return &QueueFile{
		path:   path,
		logger: logger.With().Str("component", "queuefile").Str("path", path).Logger(),
	}
}

// Load restores the queue. A missing, unreadable or malformed file yields
// an empty queue; losing the backlog is preferred over failing to start.
func (q *QueueFile) Load() []models.Alert {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if !os.IsNotExist(err) {
			q.logger.Warn().Err(err).Msg("queue file unreadable, starting empty")
		}
		return []models.Alert{}
	}

	var queue []models.Alert
	if err := json.Unmarshal(data, &queue); err != nil {
		q.logger.Warn().Err(err).Msg("queue file corrupt, starting empty")
		return []models.Alert{}
	}
	if queue == nil {
		return []models.Alert{}
	}
	return queue
}

// Save replaces the file with queue. The write goes to a sibling temp file
// that is renamed into place.
func (q *QueueFile) Save(queue []models.Alert) error {
	if queue == nil {
		queue = []models.Alert{}
	}
	data, err := json.MarshalIndent(queue, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	return WriteFileAtomic(q.path, data, 0o600)
}

// WriteFileAtomic writes data to path.tmp and renames it over path, so
// readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
