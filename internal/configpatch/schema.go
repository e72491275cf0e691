package configpatch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

// UnusableSchemaMessage is the single issue reported when a module's
// schema file exists but cannot be parsed or compiled.
const UnusableSchemaMessage = "schema file could not be used"

var schemaExts = []string{".schema.json", ".schema.yaml", ".schema.yml"}

// Schemas resolves and caches per-module JSON Schemas from a directory.
// Files are named <module>.schema.json (or .yaml/.yml). While the
// directory is watched, edits to it drop the cache.
type Schemas struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	cache   map[string]*jsonschema.Schema
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSchemas creates a registry over dir. A missing directory means no
// module has a schema.
func NewSchemas(dir string, logger zerolog.Logger) *Schemas {
	return &Schemas{
		dir:    dir,
		logger: logger.With().Str("component", "schemas").Logger(),
		cache:  map[string]*jsonschema.Schema{},
	}
}

// Watch starts invalidating the cache on changes in the schema directory.
// Without a watch every lookup reads the file again.
func (s *Schemas) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = w
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watchLoop(w, s.done)
	return nil
}

func (s *Schemas) watchLoop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.mu.Lock()
			s.cache = map[string]*jsonschema.Schema{}
			s.mu.Unlock()
			s.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("schema cache invalidated")
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("schema watcher error")
		}
	}
}

// Close stops the watcher.
func (s *Schemas) Close() error {
	s.mu.Lock()
	w, done := s.watcher, s.done
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

// Validate checks config against the schema registered for module. It
// returns nil when there is no schema or the config conforms, and a
// *SchemaError otherwise.
func (s *Schemas) Validate(module string, config map[string]any) error {
	schema, found, err := s.lookup(module)
	if !found {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("module", module).Msg("schema unusable")
		return &SchemaError{Module: module, Issues: []SchemaIssue{{Message: UnusableSchemaMessage}}}
	}

	if err := schema.Validate(any(config)); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return &SchemaError{Module: module, Issues: []SchemaIssue{{Message: err.Error()}}}
		}
		return &SchemaError{Module: module, Issues: collectIssues(ve)}
	}
	return nil
}

// lookup returns the compiled schema for module; found is false when no
// schema file exists.
func (s *Schemas) lookup(module string) (*jsonschema.Schema, bool, error) {
	if module == "" || filepath.Base(module) != module || strings.HasPrefix(module, ".") {
		return nil, false, nil
	}

	s.mu.Lock()
	if cached, ok := s.cache[module]; ok {
		s.mu.Unlock()
		return cached, true, nil
	}
	watching := s.watcher != nil
	s.mu.Unlock()

	path, data, err := s.readSchemaFile(module)
	if path == "" {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}

	schema, err := compileSchema(path, data)
	if err != nil {
		return nil, true, err
	}
	if watching {
		s.mu.Lock()
		s.cache[module] = schema
		s.mu.Unlock()
	}
	return schema, true, nil
}

func (s *Schemas) readSchemaFile(module string) (string, []byte, error) {
	for _, ext := range schemaExts {
		path := filepath.Join(s.dir, module+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		return path, data, err
	}
	return "", nil, nil
}

func compileSchema(path string, data []byte) (*jsonschema.Schema, error) {
	if !strings.HasSuffix(path, ".json") {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrap(err, "parse yaml schema")
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, "convert yaml schema")
		}
		data = converted
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	url := "file://" + filepath.ToSlash(abs)

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "load schema")
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}
	return schema, nil
}

// collectIssues flattens the validator's error tree into its leaves.
func collectIssues(ve *jsonschema.ValidationError) []SchemaIssue {
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		return []SchemaIssue{{Path: path, Message: ve.Message}}
	}
	var out []SchemaIssue
	for _, c := range ve.Causes {
		out = append(out, collectIssues(c)...)
	}
	return out
}
