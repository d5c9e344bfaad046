// Package agent wires the Eino ReAct agent to plotline's planning context,
// manuscript search and conversation history to form the writing assistant.
// Before each turn it injects the book's plan and the excerpts most related
// to the instruction; during the turn the model may call the tools in
// internal/tools for more.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/plotline-go/internal/budget"
	"github.com/54b3r/plotline-go/internal/logging"
	"github.com/54b3r/plotline-go/internal/retrieval"
	"github.com/54b3r/plotline-go/internal/store"
	"github.com/54b3r/plotline-go/internal/tools"
)

// systemPrompt is the base system prompt injected into every conversation.
const systemPrompt = `You are Plotline, a collaborative writing partner for novelists.

You help the author plan, draft and revise their book. You respect what the
author has already established: character names, personalities, timeline,
locations and plot decisions are canon unless the author says otherwise.

## How You Work

- Read the book plan and the relevant excerpts provided below before answering.
- When you need a detail that is not in front of you, call search_manuscript or
  get_entity instead of inventing it. Call planning_context if the plan below
  looks stale.
- When drafting prose, match the voice, tense and point of view of the existing
  chapters.
- When the plan and the manuscript disagree, point it out and ask which is right.
- Keep suggestions concrete: propose the scene, the line, the beat. Avoid
  generic writing advice.
- If the book has no planning data yet, help the author start one: ask about
  the premise, the protagonist and the central conflict.`

// Defaults applied by New.
const (
	DefaultExcerpts     = 5
	DefaultHistoryDepth = 10
)

// Config holds the dependencies required to construct a WritingAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools are offered to the model during the ReAct loop.
	Tools []tool.BaseTool

	// Planning renders the book plan injected before each turn. May be nil.
	Planning tools.PlanningSource

	// Searcher retrieves excerpts related to the instruction. May be nil.
	Searcher tools.Searcher

	// Excerpts is the number of excerpts injected per turn. Defaults to
	// DefaultExcerpts.
	Excerpts int

	// History persists and replays prior turns per book. May be nil.
	History store.ConversationStore

	// HistoryDepth is the number of prior exchanges (user+assistant pairs)
	// replayed per turn. Defaults to DefaultHistoryDepth.
	HistoryDepth int

	// MaxContextTokens is the estimated input budget. History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// WritingAgent wraps the Eino ReAct agent with plotline's context assembly.
type WritingAgent struct {
	// reactAgent is the underlying Eino ReAct loop agent.
	reactAgent *react.Agent

	planning tools.PlanningSource
	searcher tools.Searcher
	excerpts int

	history      store.ConversationStore
	historyDepth int

	maxContextTokens int
}

// New constructs a WritingAgent from cfg.
func New(ctx context.Context, cfg *Config) (*WritingAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cfg.ChatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: cfg.Tools,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create ReAct agent: %w", err)
	}

	excerpts := cfg.Excerpts
	if excerpts <= 0 {
		excerpts = DefaultExcerpts
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &WritingAgent{
		reactAgent:       reactAgent,
		planning:         cfg.Planning,
		searcher:         cfg.Searcher,
		excerpts:         excerpts,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Suggest answers instruction for bookID, streaming the response to w as it
// arrives. The exchange is appended to the book's history afterwards; history
// failures are logged, not returned.
func (a *WritingAgent) Suggest(ctx context.Context, bookID, instruction string, w io.Writer) error {
	if strings.TrimSpace(instruction) == "" {
		return fmt.Errorf("agent: instruction must not be empty")
	}
	ctx = tools.WithBook(ctx, bookID)
	log := logging.FromContext(ctx)

	messages := a.buildMessages(ctx, bookID, instruction)

	sr, err := a.reactAgent.Stream(ctx, messages)
	if err != nil {
		return fmt.Errorf("agent: stream failed: %w", err)
	}
	defer sr.Close()

	var reply strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("agent: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		reply.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return fmt.Errorf("agent: write error: %w", err)
		}
	}

	if a.history != nil {
		if err := a.history.Append(ctx, bookID, store.RoleUser, instruction); err != nil {
			log.Warn("history: failed to persist user message", slog.Any("error", err))
		}
		if err := a.history.Append(ctx, bookID, store.RoleAssistant, reply.String()); err != nil {
			log.Warn("history: failed to persist assistant message", slog.Any("error", err))
		}
	}
	return nil
}

// buildMessages assembles [system, ...history, plan, excerpts, user]. A search
// with no hits still sends the excerpts block, saying nothing was found. Plan
// and excerpt failures are logged and the turn proceeds without them.
func (a *WritingAgent) buildMessages(ctx context.Context, bookID, instruction string) []*schema.Message {
	log := logging.FromContext(ctx)
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt)}

	if a.planning != nil {
		plan, err := a.planning.Build(ctx, bookID)
		if err != nil {
			log.Warn("planning context failed, continuing without it", slog.Any("error", err))
		} else {
			fixed = append(fixed, schema.SystemMessage("## Book Plan\n\n"+plan))
		}
	}

	if a.searcher != nil {
		results, err := a.searcher.Search(ctx, bookID, instruction, a.excerpts)
		if err != nil {
			log.Warn("excerpt search failed, continuing without excerpts", slog.Any("error", err))
		} else {
			fixed = append(fixed, schema.SystemMessage(
				"## Relevant Excerpts\n\n"+
					"These passages from the book are related to the author's request. "+
					"Treat them as established canon.\n\n"+
					retrieval.FormatResults(results)))
		}
	}

	var historyMsgs []*schema.Message
	if a.history != nil {
		prior, err := a.history.Recent(ctx, bookID, a.historyDepth*2)
		if err != nil {
			log.Warn("history: failed to load prior messages", slog.Any("error", err))
		}
		for _, m := range prior {
			switch m.Role {
			case store.RoleUser:
				historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
			case store.RoleAssistant:
				historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
			}
		}
	}

	user := schema.UserMessage(instruction)
	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(append(fixed[:len(fixed):len(fixed)], user), historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		log.Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	out := make([]*schema.Message, 0, len(fixed)+len(historyMsgs)+1)
	out = append(out, fixed[0])
	out = append(out, historyMsgs...)
	out = append(out, fixed[1:]...)
	out = append(out, user)
	return out
}
