// Package render fills named message templates. Templates are strict: a
// template that references a context key the caller did not supply fails
// rather than emitting a hole into a customer-facing message.
package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

// ErrMissingVariable reports a template referencing an unsupplied key.
var ErrMissingVariable = errors.New("template variable missing from context")

// Renderer renders message templates loaded from a directory.
type Renderer struct {
	templates *template.Template
}

// Load parses every .tmpl file in dir.
func Load(dir string) (*Renderer, error) {
	tmpl, err := template.New("messages").
		Option("missingkey=error").
		ParseGlob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render fills the named template with the context mapping.
func (r *Renderer) Render(name string, context map[string]any) (string, error) {
	tmpl := r.templates.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("template %q not found", name)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, context); err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", fmt.Errorf("%w: %v", ErrMissingVariable, err)
		}
		return "", err
	}
	return strings.TrimSpace(out.String()) + "\n", nil
}
