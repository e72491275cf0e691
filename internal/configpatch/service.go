// Package configpatch reads the mirror's config.js, exposes its module
// entries and applies JSON-Patch edits to one entry's config with
// backup, schema validation and rollback.
package configpatch

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/simpleremote/internal/metrics"
	"github.com/eldtechnologies/simpleremote/internal/models"
	"github.com/eldtechnologies/simpleremote/internal/store"
)

// ReloadNotifier is told when a module's config was committed.
type ReloadNotifier interface {
	ReloadRequested(module string, index int)
}

// Validator checks a module config, returning a *SchemaError on failure.
type Validator interface {
	Validate(module string, config map[string]any) error
}

// Options configures a Service.
type Options struct {
	Path        string
	EvalTimeout time.Duration
	Schemas     Validator
	Notifier    ReloadNotifier
	Logger      zerolog.Logger
}

// Service edits one config file. Patches are serialized; reads are not.
type Service struct {
	path        string
	backupPath  string
	evalTimeout time.Duration
	schemas     Validator
	notifier    ReloadNotifier
	logger      zerolog.Logger

	patchMu sync.Mutex
}

// NewService creates a patch service for the config at opts.Path.
func NewService(opts Options) *Service {
	s := &Service{
		path:        opts.Path,
		backupPath:  opts.Path + ".bak",
		evalTimeout: opts.EvalTimeout,
		schemas:     opts.Schemas,
		notifier:    opts.Notifier,
		logger:      opts.Logger.With().Str("component", "configpatch").Logger(),
	}
	if s.schemas == nil {
		s.schemas = noSchemas{}
	}
	if s.notifier == nil {
		s.notifier = noNotifier{}
	}
	return s
}

// BackupPath is where the pre-patch copy of the config is kept.
func (s *Service) BackupPath() string { return s.backupPath }

// ListModules returns the summaries of all named module entries.
func (s *Service) ListModules() ([]models.ModuleSummary, error) {
	doc, err := LoadFile(s.path, s.evalTimeout)
	if err != nil {
		return nil, err
	}
	return ListModules(doc), nil
}

// GetModule returns the entry for (name, index). See Locate for the
// matching rule.
func (s *Service) GetModule(name string, index *int) (models.ModuleConfigEntry, error) {
	doc, err := LoadFile(s.path, s.evalTimeout)
	if err != nil {
		return models.ModuleConfigEntry{}, err
	}
	return Locate(doc, name, index)
}

// Patch applies ops to the config of the entry matching (name, index) and
// commits the whole document. Once the backup exists, any failure restores
// it before returning; a failed restore is logged and the original error
// is still returned.
func (s *Service) Patch(name string, index *int, ops json.RawMessage) (entry models.ModuleConfigEntry, err error) {
	s.patchMu.Lock()
	defer s.patchMu.Unlock()

	log := s.logger.With().Str("module", name).Logger()
	defer func() {
		metrics.ConfigPatches.WithLabelValues(patchResult(err)).Inc()
	}()

	doc, err := LoadFile(s.path, s.evalTimeout)
	if err != nil {
		return models.ModuleConfigEntry{}, err
	}
	entry, err = Locate(doc, name, index)
	if err != nil {
		return models.ModuleConfigEntry{}, err
	}
	log = log.With().Int("index", entry.Index).Logger()

	if err := copy.Copy(s.path, s.backupPath, copy.Options{Sync: true}); err != nil {
		return models.ModuleConfigEntry{}, &WriteError{Path: s.backupPath, Err: errors.Wrap(err, "backup")}
	}

	defer func() {
		if err == nil {
			return
		}
		if rerr := s.restore(); rerr != nil {
			log.Error().Err(rerr).AnErr("cause", err).Msg("rollback failed")
			return
		}
		log.Warn().Err(err).Msg("patch rolled back")
	}()

	patched, err := Apply(entry.Config, ops)
	if err != nil {
		return models.ModuleConfigEntry{}, err
	}
	if err := s.schemas.Validate(entry.Module, patched); err != nil {
		return models.ModuleConfigEntry{}, err
	}

	list := doc["modules"].([]any)
	raw := list[entry.Index].(map[string]any)
	raw["config"] = patched

	data, err := Encode(doc)
	if err != nil {
		return models.ModuleConfigEntry{}, &WriteError{Path: s.path, Err: err}
	}
	if err := store.WriteFileAtomic(s.path, data, filePerm(s.path)); err != nil {
		return models.ModuleConfigEntry{}, &WriteError{Path: s.path, Err: errors.Wrap(err, "commit")}
	}

	entry.Config = patched
	log.Info().Msg("module config updated")
	s.notifier.ReloadRequested(entry.Module, entry.Index)
	return entry, nil
}

// restore puts the backup back through a temp file and rename, so the
// live path is never half written.
func (s *Service) restore() error {
	tmp := s.path + ".restore"
	if err := copy.Copy(s.backupPath, tmp, copy.Options{Sync: true}); err != nil {
		return errors.Wrap(err, "copy backup")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replace live config")
	}
	return nil
}

func filePerm(path string) os.FileMode {
	if fi, err := os.Stat(path); err == nil {
		return fi.Mode().Perm()
	}
	return 0o644
}

func patchResult(err error) string {
	var (
		readErr   *ReadError
		writeErr  *WriteError
		patchErr  *PatchError
		schemaErr *SchemaError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &patchErr):
		return "invalid_patch"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &readErr):
		return "read_error"
	case errors.As(err, &writeErr):
		return "write_error"
	default:
		return "error"
	}
}

type noSchemas struct{}

func (noSchemas) Validate(string, map[string]any) error { return nil }

type noNotifier struct{}

func (noNotifier) ReloadRequested(string, int) {}
