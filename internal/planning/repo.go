package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist or was deleted.
var ErrNotFound = errors.New("planning: not found")

// GormRepo reads planning rows through GORM. It serves the Builder's
// per-category projection and retrieval's entity listing.
type GormRepo struct {
	db *gorm.DB
}

// NewGormRepo returns a repository over db. Call Migrate first.
func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

// DB returns the underlying handle.
func (r *GormRepo) DB() *gorm.DB { return r.db }

// Rows implements RowSource.
func (r *GormRepo) Rows(ctx context.Context, bookID string, c Category) ([]Row, error) {
	q := r.db.WithContext(ctx).Where("book_id = ?", bookID)
	switch c {
	case PlotPoints:
		var ms []PlotPoint
		if err := q.Select("id", "title", "description").Order("sequence, created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m PlotPoint) Row { return Row{Title: m.Title, Detail: m.Description} }), nil

	case Characters:
		var ms []Character
		if err := q.Select("id", "name", "role", "description").Order("name").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m Character) Row {
			title := m.Name
			if m.Role != "" {
				title += " (" + m.Role + ")"
			}
			return Row{Title: title, Detail: m.Description}
		}), nil

	case Chapters:
		var ms []Chapter
		if err := q.Select("id", "number", "title", "summary").Order("number, created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m Chapter) Row {
			return Row{Title: chapterTitle(m.Number, m.Title), Detail: m.Summary}
		}), nil

	case Locations:
		var ms []Location
		if err := q.Select("id", "name", "description").Order("name").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m Location) Row { return Row{Title: m.Name, Detail: m.Description} }), nil

	case Brainstorming:
		var ms []BrainstormNote
		if err := q.Select("id", "title", "content").Order("created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m BrainstormNote) Row { return Row{Title: m.Title, Detail: m.Content} }), nil

	case Timeline:
		var ms []TimelineEvent
		if err := q.Select("id", "title", "description", "event_date").Order("event_date, created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m TimelineEvent) Row {
			title := m.Title
			if m.EventDate != "" {
				title = m.EventDate + " " + title
			}
			return Row{Title: title, Detail: m.Description}
		}), nil

	case SceneCards:
		var ms []SceneCard
		if err := q.Select("id", "title", "summary").Order("chapter_number, sequence, created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m SceneCard) Row { return Row{Title: m.Title, Detail: m.Summary} }), nil

	case Research:
		var ms []ResearchItem
		if err := q.Select("id", "title", "notes").Order("created_at").Find(&ms).Error; err != nil {
			return nil, err
		}
		return project(ms, func(m ResearchItem) Row { return Row{Title: m.Title, Detail: m.Notes} }), nil
	}
	return nil, fmt.Errorf("planning: unknown category %q", c)
}

// Entities returns every current row of the book, all categories, with
// their indexable fields.
func (r *GormRepo) Entities(ctx context.Context, bookID string) ([]Entity, error) {
	var out []Entity
	for _, c := range Categories {
		es, err := r.list(ctx, bookID, c, "")
		if err != nil {
			return nil, fmt.Errorf("planning: list %s: %w", c, err)
		}
		out = append(out, es...)
	}
	return out, nil
}

// Entity returns one row. It returns ErrNotFound when the row does not exist
// in bookID.
func (r *GormRepo) Entity(ctx context.Context, bookID string, c Category, id string) (Entity, error) {
	es, err := r.list(ctx, bookID, c, id)
	if err != nil {
		return Entity{}, fmt.Errorf("planning: get %s %s: %w", c, id, err)
	}
	if len(es) == 0 {
		return Entity{}, fmt.Errorf("planning: get %s %s: %w", c, id, ErrNotFound)
	}
	return es[0], nil
}

// list loads the rows of one category, restricted to id when non-empty.
func (r *GormRepo) list(ctx context.Context, bookID string, c Category, id string) ([]Entity, error) {
	q := r.db.WithContext(ctx).Where("book_id = ?", bookID).Order("created_at, id")
	if id != "" {
		q = q.Where("id = ?", id)
	}
	switch c {
	case PlotPoints:
		return listAs(q, func(m PlotPoint) Entity {
			return entity(c, m.ID, map[string]string{
				"title":       m.Title,
				"description": m.Description,
				"act":         m.Act,
			}, map[string]string{"sequence": strconv.Itoa(m.Sequence)})
		})
	case Characters:
		return listAs(q, func(m Character) Entity {
			return entity(c, m.ID, map[string]string{
				"name":        m.Name,
				"role":        m.Role,
				"description": m.Description,
				"personality": m.Personality,
				"backstory":   m.Backstory,
			}, nil)
		})
	case Chapters:
		return listAs(q, func(m Chapter) Entity {
			return entity(c, m.ID, map[string]string{
				"title":   chapterTitle(m.Number, m.Title),
				"summary": m.Summary,
				"content": m.Content,
			}, map[string]string{"chapter": strconv.Itoa(m.Number)})
		})
	case Locations:
		return listAs(q, func(m Location) Entity {
			return entity(c, m.ID, map[string]string{
				"name":         m.Name,
				"description":  m.Description,
				"significance": m.Significance,
			}, nil)
		})
	case Brainstorming:
		return listAs(q, func(m BrainstormNote) Entity {
			tags := decodeTags(m.Tags)
			var meta map[string]string
			if tags != "" {
				meta = map[string]string{"tags": tags}
			}
			return entity(c, m.ID, map[string]string{
				"title":   m.Title,
				"content": m.Content,
				"tags":    tags,
			}, meta)
		})
	case Timeline:
		return listAs(q, func(m TimelineEvent) Entity {
			return entity(c, m.ID, map[string]string{
				"title":       m.Title,
				"date":        m.EventDate,
				"description": m.Description,
			}, map[string]string{"date": m.EventDate})
		})
	case SceneCards:
		return listAs(q, func(m SceneCard) Entity {
			return entity(c, m.ID, map[string]string{
				"title":   m.Title,
				"pov":     m.POV,
				"setting": m.Setting,
				"summary": m.Summary,
			}, map[string]string{"chapter": strconv.Itoa(m.ChapterNumber)})
		})
	case Research:
		return listAs(q, func(m ResearchItem) Entity {
			return entity(c, m.ID, map[string]string{
				"title":  m.Title,
				"notes":  m.Notes,
				"source": m.Source,
			}, nil)
		})
	}
	return nil, fmt.Errorf("unknown category %q", c)
}

func listAs[M any](q *gorm.DB, fn func(M) Entity) ([]Entity, error) {
	var ms []M
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return project(ms, fn), nil
}

func project[M, T any](ms []M, fn func(M) T) []T {
	out := make([]T, len(ms))
	for i, m := range ms {
		out[i] = fn(m)
	}
	return out
}

func entity(c Category, id string, fields, meta map[string]string) Entity {
	return Entity{Category: c, ID: id, Fields: fields, Metadata: meta}
}

func chapterTitle(n int, title string) string {
	switch {
	case n > 0 && title != "":
		return fmt.Sprintf("Ch.%d: %s", n, title)
	case n > 0:
		return fmt.Sprintf("Ch.%d", n)
	}
	return title
}

// decodeTags renders a JSON string array as a comma-separated list.
func decodeTags(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return ""
	}
	return strings.Join(tags, ", ")
}

// UpsertChapter saves the chapter numbered number in bookID, updating the
// current row with that number when one exists. It returns the row id.
func (r *GormRepo) UpsertChapter(ctx context.Context, bookID string, number int, title, content string) (string, error) {
	var id string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch Chapter
		err := tx.Where("book_id = ? AND number = ?", bookID, number).Order("created_at").First(&ch).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			ch = Chapter{Base: Base{BookID: bookID}, Number: number, Title: title, Content: content}
			if err := tx.Create(&ch).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&ch).Updates(map[string]any{"title": title, "content": content}).Error; err != nil {
				return err
			}
		}
		id = ch.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("planning: upsert chapter %d: %w", number, err)
	}
	return id, nil
}
