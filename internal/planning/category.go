// Package planning owns a book's planning data (plot points, characters,
// chapters, locations, brainstorming notes, timeline, scene cards, research)
// and assembles it into a single bounded text blob for prompt context.
package planning

import "fmt"

// Category is one of the eight kinds of planning row. Its string value is
// also the chunk source type used by retrieval.
type Category string

const (
	PlotPoints    Category = "plotPoint"
	Characters    Category = "character"
	Chapters      Category = "chapter"
	Locations     Category = "location"
	Brainstorming Category = "brainstorming"
	Timeline      Category = "timeline"
	SceneCards    Category = "sceneCard"
	Research      Category = "research"
)

// Categories lists every category in context priority order. Under budget
// pressure later entries are dropped first.
var Categories = []Category{
	PlotPoints,
	Characters,
	Chapters,
	Locations,
	Brainstorming,
	Timeline,
	SceneCards,
	Research,
}

var labels = map[Category]string{
	PlotPoints:    "Plot Points",
	Characters:    "Characters",
	Chapters:      "Chapters",
	Locations:     "Locations",
	Brainstorming: "Brainstorming Notes",
	Timeline:      "Timeline",
	SceneCards:    "Scene Cards",
	Research:      "Research",
}

// Label returns the section heading for c.
func (c Category) Label() string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// ParseCategory converts s into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := labels[c]; !ok {
		return "", fmt.Errorf("planning: unknown category %q", s)
	}
	return c, nil
}

// Row is the display projection of one planning row.
type Row struct {
	// Title is the row's name or heading.
	Title string
	// Detail is the row's short descriptive text. It is the field clipped
	// when the context is over budget.
	Detail string
}

// Entity is a planning row with every indexable field, keyed by field name.
// Retrieval turns it into embeddable text.
type Entity struct {
	// Category is the kind of row.
	Category Category
	// ID is the row's id.
	ID string
	// Fields maps field names (name, description, content...) to values.
	Fields map[string]string
	// Metadata is copied onto the entity's chunks.
	Metadata map[string]string
}
