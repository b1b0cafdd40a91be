// Package esmcol validates ESM collection files against the esm-collection-spec
// JSON Schema and cross-checks the columns of the catalog file they reference.
package esmcol

// CollectionFields are the top-level keys that mark a document as a collection.
var CollectionFields = []string{
	"esmcat_version",
	"id",
	"description",
	"catalog_file",
	"attributes",
	"assets",
}

// IsCollection reports whether doc is a JSON object carrying at least one
// collection field.
func IsCollection(doc any) (map[string]any, bool) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, f := range CollectionFields {
		if _, ok := m[f]; ok {
			return m, true
		}
	}
	return nil, false
}

// Counts tallies verdicts for one kind of file.
type Counts struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

func (c *Counts) add(ok bool) {
	if ok {
		c.Valid++
	} else {
		c.Invalid++
	}
}

// Status is the aggregate tally of a validator. CatalogFiles is nil when
// catalog files are not cross-checked.
type Status struct {
	Collections  Counts  `json:"collections"`
	CatalogFiles *Counts `json:"catalog_files,omitempty"`
	Unknown      int     `json:"unknown"`
}

func (s Status) clone() Status {
	if s.CatalogFiles != nil {
		c := *s.CatalogFiles
		s.CatalogFiles = &c
	}
	return s
}

// Message is the per-input entry of a report.
type Message struct {
	Path                string `json:"path"`
	ValidCollection     *bool  `json:"valid_esmcol,omitempty"`
	ErrorType           string `json:"error_type,omitempty"`
	ErrorMessage        string `json:"error_message,omitempty"`
	ValidCatalog        *bool  `json:"valid_esmcat,omitempty"`
	CatalogErrorMessage string `json:"cat_error_message,omitempty"`
}

// Report is the result of a run.
type Report struct {
	RunID    string    `json:"run_id"`
	Version  string    `json:"version"`
	Messages []Message `json:"messages"`
	Status   Status    `json:"status"`
}
