package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/plotline-go/internal/planning"
)

// PlanningTool returns the book's planning overview.
type PlanningTool struct {
	src PlanningSource
}

// NewPlanningTool constructs a PlanningTool.
func NewPlanningTool(src PlanningSource) *PlanningTool {
	return &PlanningTool{src: src}
}

func (t *PlanningTool) Name() string { return "planning_context" }

func (t *PlanningTool) Description() string {
	return "Returns the current book's plan: plot points, characters, chapters, locations, brainstorming notes, " +
		"timeline, scene cards and research, summarised within a size budget."
}

func (t *PlanningTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}, nil
}

func (t *PlanningTool) InvokableRun(ctx context.Context, _ string, _ ...tool.Option) (string, error) {
	bookID, err := requireBook(ctx, t.Name())
	if err != nil {
		return "", err
	}
	out, err := t.src.Build(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("planning_context: %w", err)
	}
	return out, nil
}

// EntityTool returns every field of one planning entity, for when the
// summarised plan clips the detail the model needs.
type EntityTool struct {
	getter EntityGetter
}

type entityInput struct {
	Category string `json:"category"`
	ID       string `json:"id"`
}

// NewEntityTool constructs an EntityTool.
func NewEntityTool(g EntityGetter) *EntityTool {
	return &EntityTool{getter: g}
}

func (t *EntityTool) Name() string { return "get_entity" }

func (t *EntityTool) Description() string {
	return "Returns all fields of a single planning entity (character, chapter, location...) by category and id."
}

func (t *EntityTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	cats := make([]string, len(planning.Categories))
	for i, c := range planning.Categories {
		cats[i] = string(c)
	}
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"category": {Type: schema.String, Desc: "Entity category.", Enum: cats, Required: true},
			"id":       {Type: schema.String, Desc: "Entity id, as shown in search results.", Required: true},
		}),
	}, nil
}

func (t *EntityTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	bookID, err := requireBook(ctx, t.Name())
	if err != nil {
		return "", err
	}
	var in entityInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("get_entity: invalid input: %w", err)
	}
	c, err := planning.ParseCategory(in.Category)
	if err != nil {
		return "", fmt.Errorf("get_entity: %w", err)
	}
	if in.ID == "" {
		return "", fmt.Errorf("get_entity: id is required")
	}
	e, err := t.getter.Entity(ctx, bookID, c, in.ID)
	if err != nil {
		return "", fmt.Errorf("get_entity: %w", err)
	}
	out, err := json.Marshal(struct {
		Category string            `json:"category"`
		ID       string            `json:"id"`
		Fields   map[string]string `json:"fields"`
	}{string(e.Category), e.ID, e.Fields})
	if err != nil {
		return "", fmt.Errorf("get_entity: %w", err)
	}
	return string(out), nil
}
