package config

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// ApplyPayloadRules strips and sets JSON paths on body per rules, in that
// order (strip before set, so a set can reintroduce a stripped path with a
// literal value). Used by the dispatcher after translation, just before the
// body is handed to the executor.
func ApplyPayloadRules(body []byte, rules PayloadRules) ([]byte, error) {
	var err error
	for _, path := range rules.Strip {
		body, err = sjson.DeleteBytes(body, path)
		if err != nil {
			return nil, fmt.Errorf("config: strip payload path %q: %w", path, err)
		}
	}
	for path, value := range rules.Set {
		body, err = sjson.SetBytes(body, path, value)
		if err != nil {
			return nil, fmt.Errorf("config: set payload path %q: %w", path, err)
		}
	}
	return body, nil
}
