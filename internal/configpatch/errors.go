package configpatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no module entry matches the lookup.
var ErrNotFound = errors.New("module not found")

// ReadError means the mirror config could not be read or is not a config
// object with a modules list.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read config %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError means the backup, commit or restore of the config file failed.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write config %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PatchError means the JSON-Patch document is malformed or could not be
// applied, including a failed test operation.
type PatchError struct {
	Err error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("invalid patch: %v", e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// SchemaIssue is one validator finding.
type SchemaIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaError reports a patched config that fails its module schema.
type SchemaError struct {
	Module string
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("config for %s fails schema validation (%d issues)", e.Module, len(e.Issues))
}
