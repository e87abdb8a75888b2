// Package view renders the browser frontend.
//
// List and detail fragments are produced server-side by pure functions of
// (items, State); the static page shell and script only fetch fragments,
// swap them into the DOM and call the JSON API.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/pbaille/todos/internal/domain"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

const stampLayout = "2006-01-02 15:04:05"

var templates = template.Must(
	template.New("view").Funcs(template.FuncMap{
		"iso":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"stamp": func(t time.Time) string { return t.UTC().Format(stampLayout) },
	}).ParseFS(templateFiles, "templates/*.tmpl"),
)

// State is the client UI state that affects list rendering.
// EditingID is zero while viewing; store ids start at 1.
type State struct {
	EditingID int64
}

// Viewing is the default state
var Viewing = State{}

// Editing returns the state in which item id shows an inline input.
// Only one item can be edited at a time.
func Editing(id int64) State {
	return State{EditingID: id}
}

// IsEditing reports whether item id is the one being edited
func (s State) IsEditing(id int64) bool {
	return s.EditingID != 0 && s.EditingID == id
}

// RenderList writes the <li> elements for items in the given state
func RenderList(w io.Writer, items []domain.Item, st State) error {
	data := struct {
		Items []domain.Item
		State State
	}{items, st}
	if err := templates.ExecuteTemplate(w, "list", data); err != nil {
		return fmt.Errorf("render list: %w", err)
	}
	return nil
}

// RenderDetail writes the read-only snapshot shown in the detail modal
func RenderDetail(w io.Writer, item domain.Item) error {
	if err := templates.ExecuteTemplate(w, "detail", item); err != nil {
		return fmt.Errorf("render detail: %w", err)
	}
	return nil
}

// Static returns the page shell, stylesheet and script
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
