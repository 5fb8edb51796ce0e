// Package models defines core data structures for documents, units, search hits, and index runs.
package models

// UnitKind tells how a Unit was delimited in its source document.
type UnitKind int

const (
	// Prose is a blank-line terminated paragraph.
	Prose UnitKind = iota
	// CodeBlock is a fenced code block including both fence lines.
	CodeBlock
)

// String returns the lower-case name of the kind.
func (k UnitKind) String() string {
	switch k {
	case Prose:
		return "prose"
	case CodeBlock:
		return "code_block"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name so JSON output stays readable.
func (k UnitKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Unit is one independently embeddable span of a document.
type Unit struct {
	Text string   `json:"text"`
	Kind UnitKind `json:"kind"`
}

// Document is a corpus file together with its segmented units.
// ID is the corpus-relative path using forward slashes. Documents are never mutated after load.
type Document struct {
	ID      string `json:"id"`
	RawText string `json:"raw_text"`
	Units   []Unit `json:"units"`
}

// UnitTexts returns the text of every unit in source order.
func (d *Document) UnitTexts() []string {
	texts := make([]string, len(d.Units))
	for i, u := range d.Units {
		texts[i] = u.Text
	}
	return texts
}

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Content string `json:"content"`
}
