package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLRenderer writes the story pages and fragments.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded templates.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// ListPage writes the full stories page.
func (r *HTMLRenderer) ListPage(w io.Writer, v ListView) error {
	return r.execute(w, "list_page", v)
}

// Cards writes the story cards and pagination controls only.
func (r *HTMLRenderer) Cards(w io.Writer, v ListView) error {
	return r.execute(w, "cards", v)
}

// Detail writes a story page with its duplicates.
func (r *HTMLRenderer) Detail(w io.Writer, v DetailView) error {
	return r.execute(w, "detail_page", v)
}

// Edit writes the edit form.
func (r *HTMLRenderer) Edit(w io.Writer, v EditView) error {
	return r.execute(w, "edit_page", v)
}

// Error writes a short error fragment.
func (r *HTMLRenderer) Error(w io.Writer, msg string) error {
	return r.execute(w, "error_fragment", msg)
}

// execute renders into a buffer first so a template failure never leaves a
// half written response.
func (r *HTMLRenderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
