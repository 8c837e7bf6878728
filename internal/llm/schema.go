package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates model replies before they are decoded into Go values.
type Schema struct {
	compiled *jsonschema.Schema
}

// MustSchema compiles src or panics; used for package-level schemas.
func MustSchema(name, src string) *Schema {
	return &Schema{compiled: jsonschema.MustCompileString(name, src)}
}

// Decode validates content against s and unmarshals it into v.
func (s *Schema) Decode(content string, v any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("reply is not JSON: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("reply violates schema: %w", err)
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
