package configpatch

import (
	"encoding/json"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/pkg/errors"
)

const wrapKey = "config"

var validOps = map[string]bool{
	"add": true, "remove": true, "replace": true,
	"move": true, "copy": true, "test": true,
}

// Apply runs the JSON-Patch operations in ops against a copy of config and
// returns the result. The document is applied under a wrapper object so a
// path of "" addresses the whole config.
func Apply(config map[string]any, ops json.RawMessage) (map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(ops, &list); err != nil {
		return nil, &PatchError{Err: errors.Wrap(err, "patch must be an array of operations")}
	}
	for i, op := range list {
		if op == nil {
			return nil, &PatchError{Err: errors.Errorf("operation %d is not an object", i)}
		}
		name, _ := op["op"].(string)
		if !validOps[name] {
			return nil, &PatchError{Err: errors.Errorf("operation %d: unknown op %q", i, op["op"])}
		}
		if err := prefixPointer(op, "path"); err != nil {
			return nil, &PatchError{Err: errors.Wrapf(err, "operation %d", i)}
		}
		if name == "move" || name == "copy" {
			if err := prefixPointer(op, "from"); err != nil {
				return nil, &PatchError{Err: errors.Wrapf(err, "operation %d", i)}
			}
		}
	}

	rewritten, err := json.Marshal(list)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	patch, err := jsonpatch.DecodePatch(rewritten)
	if err != nil {
		return nil, &PatchError{Err: err}
	}

	doc, err := json.Marshal(map[string]any{wrapKey: config})
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, &PatchError{Err: err}
	}

	var out map[string]any
	if err := decodeJSON(patched, &out); err != nil {
		return nil, &PatchError{Err: err}
	}
	result, ok := out[wrapKey].(map[string]any)
	if !ok {
		return nil, &PatchError{Err: errors.New("patched config is not an object")}
	}
	return result, nil
}

func prefixPointer(op map[string]any, field string) error {
	p, ok := op[field].(string)
	if !ok {
		return errors.Errorf("missing %q", field)
	}
	if p != "" && !strings.HasPrefix(p, "/") {
		return errors.Errorf("%s %q is not a JSON pointer", field, p)
	}
	op[field] = "/" + wrapKey + p
	return nil
}
