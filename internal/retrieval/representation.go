package retrieval

import (
	"strings"

	"github.com/54b3r/plotline-go/internal/planning"
	"github.com/54b3r/plotline-go/internal/rag"
)

// Field is one labelled line of an entity's text representation.
type Field struct {
	// Label prefixes the value, e.g. "Character".
	Label string
	// Key selects the value from planning.Entity.Fields.
	Key string
}

// Representations maps each source type to the fields embedded for it, in
// output order. Adding a category means adding an entry here.
var Representations = map[rag.SourceType][]Field{
	rag.SourceCharacter: {
		{"Character", "name"},
		{"Role", "role"},
		{"Description", "description"},
		{"Personality", "personality"},
		{"Backstory", "backstory"},
	},
	rag.SourceChapter: {
		{"Chapter", "title"},
		{"Summary", "summary"},
		{"Content", "content"},
	},
	rag.SourceLocation: {
		{"Location", "name"},
		{"Description", "description"},
		{"Significance", "significance"},
	},
	rag.SourcePlotPoint: {
		{"Plot Point", "title"},
		{"Act", "act"},
		{"Description", "description"},
	},
	rag.SourceBrainstorming: {
		{"Brainstorm", "title"},
		{"Tags", "tags"},
		{"Content", "content"},
	},
	rag.SourceTimeline: {
		{"Event", "title"},
		{"Date", "date"},
		{"Description", "description"},
	},
	rag.SourceSceneCard: {
		{"Scene", "title"},
		{"POV", "pov"},
		{"Setting", "setting"},
		{"Summary", "summary"},
	},
	rag.SourceResearch: {
		{"Research", "title"},
		{"Source", "source"},
		{"Notes", "notes"},
	},
}

// Represent renders e as "Label: value" lines joined by blank lines. Empty
// fields are left out; an entity with no non-empty field renders as "".
func Represent(e planning.Entity) string {
	fields := Representations[rag.SourceType(e.Category)]
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(e.Fields[f.Key])
		if v == "" {
			continue
		}
		parts = append(parts, f.Label+": "+v)
	}
	return strings.Join(parts, "\n\n")
}
