package configpatch

import (
	"github.com/mitchellh/mapstructure"

	"github.com/eldtechnologies/simpleremote/internal/models"
)

// ListModules summarizes the module list. Entries without a module name
// are left out; indexes refer to positions in the full list.
func ListModules(doc map[string]any) []models.ModuleSummary {
	list, _ := doc["modules"].([]any)
	out := make([]models.ModuleSummary, 0, len(list))
	for i, raw := range list {
		entry, ok := decodeEntry(raw)
		if !ok || entry.Module == "" {
			continue
		}
		out = append(out, models.ModuleSummary{
			Index:    i,
			Module:   entry.Module,
			Position: nonEmpty(entry.Position),
			Header:   nonEmpty(entry.Header),
		})
	}
	return out
}

// Locate finds the entry for name. With an index both must match;
// without one the first entry carrying the name wins.
func Locate(doc map[string]any, name string, index *int) (models.ModuleConfigEntry, error) {
	list, _ := doc["modules"].([]any)
	for i, raw := range list {
		if index != nil && i != *index {
			continue
		}
		entry, ok := decodeEntry(raw)
		if !ok || entry.Module != name {
			continue
		}
		entry.Index = i
		if entry.Config == nil {
			entry.Config = map[string]any{}
		}
		return entry, nil
	}
	return models.ModuleConfigEntry{}, ErrNotFound
}

func decodeEntry(raw any) (models.ModuleConfigEntry, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return models.ModuleConfigEntry{}, false
	}
	var entry models.ModuleConfigEntry
	if _, ok := m["module"].(string); !ok {
		return entry, false
	}
	// Only string positions and headers are meaningful; anything else is
	// treated as absent rather than failing the whole list.
	clean := map[string]any{"module": m["module"]}
	for _, k := range []string{"position", "header"} {
		if s, ok := m[k].(string); ok {
			clean[k] = s
		}
	}
	if cfg, ok := m["config"].(map[string]any); ok {
		clean["config"] = cfg
	}
	if err := mapstructure.Decode(clean, &entry); err != nil {
		return models.ModuleConfigEntry{}, false
	}
	return entry, true
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
