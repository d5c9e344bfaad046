package planning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the columns every planning row shares. Rows are soft-deleted;
// only rows with a null DeletedAt are current.
type Base struct {
	ID        string         `gorm:"size:36;primaryKey" json:"id"`
	BookID    string         `gorm:"size:36;not null;index" json:"book_id"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate assigns a random id when none was set.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Book is a collection: the ownership boundary for planning rows and chunks.
type Book struct {
	ID        string         `gorm:"size:36;primaryKey" json:"id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Genre     string         `gorm:"size:64" json:"genre,omitempty"`
	Synopsis  string         `gorm:"type:text" json:"synopsis,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (Book) TableName() string { return "books" }

type PlotPoint struct {
	Base
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Act         string `gorm:"size:32" json:"act,omitempty"`
	Sequence    int    `gorm:"not null;default:0" json:"sequence"`
}

func (PlotPoint) TableName() string { return "plot_points" }

type Character struct {
	Base
	Name        string `gorm:"size:255;not null" json:"name"`
	Role        string `gorm:"size:64" json:"role,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Personality string `gorm:"type:text" json:"personality,omitempty"`
	Backstory   string `gorm:"type:text" json:"backstory,omitempty"`
}

func (Character) TableName() string { return "characters" }

// Chapter holds manuscript text. Content is only read by the indexing path;
// the planning projection uses Summary.
type Chapter struct {
	Base
	Number  int    `gorm:"not null;default:0" json:"number"`
	Title   string `gorm:"size:255" json:"title"`
	Summary string `gorm:"type:text" json:"summary,omitempty"`
	Content string `gorm:"type:text" json:"content,omitempty"`
}

func (Chapter) TableName() string { return "chapters" }

type Location struct {
	Base
	Name         string `gorm:"size:255;not null" json:"name"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	Significance string `gorm:"type:text" json:"significance,omitempty"`
}

func (Location) TableName() string { return "locations" }

type BrainstormNote struct {
	Base
	Title   string         `gorm:"size:255" json:"title"`
	Content string         `gorm:"type:text" json:"content,omitempty"`
	Tags    datatypes.JSON `json:"tags,omitempty"`
}

func (BrainstormNote) TableName() string { return "brainstorm_notes" }

// TimelineEvent is ordered by EventDate, an in-story date written so that it
// sorts lexically (e.g. "0001-03-14" or "Y3-D12").
type TimelineEvent struct {
	Base
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	EventDate   string `gorm:"size:64;index" json:"event_date,omitempty"`
}

func (TimelineEvent) TableName() string { return "timeline_events" }

type SceneCard struct {
	Base
	Title         string `gorm:"size:255;not null" json:"title"`
	Summary       string `gorm:"type:text" json:"summary,omitempty"`
	POV           string `gorm:"column:pov;size:255" json:"pov,omitempty"`
	Setting       string `gorm:"size:255" json:"setting,omitempty"`
	ChapterNumber int    `gorm:"not null;default:0" json:"chapter_number"`
	Sequence      int    `gorm:"not null;default:0" json:"sequence"`
}

func (SceneCard) TableName() string { return "scene_cards" }

type ResearchItem struct {
	Base
	Title  string `gorm:"size:255;not null" json:"title"`
	Notes  string `gorm:"type:text" json:"notes,omitempty"`
	Source string `gorm:"size:1024" json:"source,omitempty"`
}

func (ResearchItem) TableName() string { return "research_items" }

// Models lists every planning model for migration.
func Models() []any {
	return []any{
		&Book{},
		&PlotPoint{},
		&Character{},
		&Chapter{},
		&Location{},
		&BrainstormNote{},
		&TimelineEvent{},
		&SceneCard{},
		&ResearchItem{},
	}
}

// Migrate creates or updates the planning tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("planning: migrate: %w", err)
	}
	return nil
}
