package intents

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Definition describes one intent: the fields that must be collected before
// it can be resolved, the data-source action that resolves it, and anchor
// phrases used by the lexical classifier.
type Definition struct {
	RequiredFields []string `json:"required_fields"`
	Action         string   `json:"action"`
	Anchors        []string `json:"anchors"`
}

// Schema is the static intent → required-fields mapping. The flow engine
// treats it as an opaque lookup table; field names live only in config.
type Schema struct {
	defs map[string]Definition
}

// Load reads the schema from a JSON config file.
func Load(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent schema: %w", err)
	}
	defs := map[string]Definition{}
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse intent schema: %w", err)
	}
	return &Schema{defs: defs}, nil
}

// NewSchema builds a schema from an in-memory definition map.
func NewSchema(defs map[string]Definition) *Schema {
	copied := make(map[string]Definition, len(defs))
	for name, def := range defs {
		copied[name] = def
	}
	return &Schema{defs: copied}
}

// Required returns the ordered required-field list for an intent. The second
// return is false for intents the schema does not know.
func (s *Schema) Required(intent string) ([]string, bool) {
	def, ok := s.defs[intent]
	if !ok {
		return nil, false
	}
	fields := make([]string, len(def.RequiredFields))
	copy(fields, def.RequiredFields)
	return fields, true
}

// Action returns the data-source action bound to an intent.
func (s *Schema) Action(intent string) (string, bool) {
	def, ok := s.defs[intent]
	return def.Action, ok
}

// Anchors returns the classifier anchor phrases for an intent.
func (s *Schema) Anchors(intent string) []string {
	return s.defs[intent].Anchors
}

// Intents lists all known intent names in stable order.
func (s *Schema) Intents() []string {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
