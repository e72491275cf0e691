package configpatch

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// prelude gives the script the CommonJS globals a mirror config assigns to.
const prelude = `var module = { exports: {} }; var exports = module.exports;`

// LoadFile evaluates the config script at path and returns its exported
// object as plain JSON data. Functions and other values JSON cannot
// represent are dropped, as a JSON round trip would.
func LoadFile(path string, timeout time.Duration) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	doc, err := evaluate(path, string(src), timeout)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return doc, nil
}

func evaluate(name, src string, timeout time.Duration) (map[string]any, error) {
	vm := goja.New()
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			vm.Interrupt("config evaluation timed out")
		})
		defer timer.Stop()
	}

	if _, err := vm.RunString(prelude); err != nil {
		return nil, errors.Wrap(err, "prepare runtime")
	}
	if _, err := vm.RunScript(name, src); err != nil {
		return nil, errors.Wrap(err, "evaluate")
	}
	out, err := vm.RunString("JSON.stringify(module.exports)")
	if err != nil {
		return nil, errors.Wrap(err, "serialize exports")
	}
	if goja.IsUndefined(out) || goja.IsNull(out) {
		return nil, errors.New("config does not export a value")
	}

	var doc map[string]any
	if err := decodeJSON([]byte(out.String()), &doc); err != nil {
		return nil, errors.Wrap(err, "exported value is not an object")
	}
	if doc == nil {
		return nil, errors.New("exported value is not an object")
	}
	if _, ok := doc["modules"].([]any); !ok {
		return nil, errors.New("config has no modules list")
	}
	return doc, nil
}

// decodeJSON keeps numbers as json.Number so integers survive a rewrite
// unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Encode renders doc as a loadable config script.
func Encode(doc map[string]any) ([]byte, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("module.exports = ")
	buf.Write(body)
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}
