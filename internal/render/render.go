// Package render implements the template collaborator on top of pongo2.
//
// Templates are Django/Jinja-style files living inside the content root.
// They are loaded per request rather than cached: route content may change
// between requests, and the index snapshot only governs resolution, not
// file bytes. The loader is rooted at the content root so {% include %} and
// {% extends %} cannot reach outside it.
package render

import (
	"fmt"

	"github.com/flosch/pongo2/v6"
)

// Renderer renders a template file with a request-derived data context.
type Renderer interface {
	Render(relPath string, context map[string]interface{}) ([]byte, error)
}

// PongoRenderer renders pongo2 templates from the content root.
type PongoRenderer struct {
	set *pongo2.TemplateSet
}

// NewPongoRenderer creates a renderer whose loader is rooted at root.
func NewPongoRenderer(root string) (*PongoRenderer, error) {
	loader, err := pongo2.NewLocalFileSystemLoader(root)
	if err != nil {
		return nil, fmt.Errorf("creating template loader: %w", err)
	}

	return &PongoRenderer{
		set: pongo2.NewSet("routefs", loader),
	}, nil
}

// Render loads and executes one template. Loading is deliberately uncached.
func (r *PongoRenderer) Render(relPath string, context map[string]interface{}) ([]byte, error) {
	tpl, err := r.set.FromFile(relPath)
	if err != nil {
		return nil, err
	}

	return tpl.ExecuteBytes(pongo2.Context(context))
}
