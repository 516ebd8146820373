package nlu

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"furnivox/internal/command"
	"furnivox/internal/inventory"
	"furnivox/internal/metrics"
)

var (
	ErrEmptyCommand = errors.New("no command provided")
	ErrUpstream     = errors.New("reasoner failed")
)

const (
	excerptCategories = 10
	excerptRecords    = 15

	// Spoken back when the reasoner's structured reply cannot be used.
	FallbackReply = "Sorry, I could not understand that command. Please try again."
)

// Prompt is everything a reasoner gets for one command.
type Prompt struct {
	System  string
	Tools   []command.Tool
	Message string
}

// Reasoner turns a user command into a tool call or a free text reply.
type Reasoner interface {
	Name() string
	Decide(ctx context.Context, p Prompt) (command.Decision, error)
}

const systemPrompt = `You are a VR furniture placement assistant. You MUST use the provided tools for all furniture actions.

CRITICAL: When user says delete/remove + furniture description, ALWAYS call delete_furniture tool with parameters.
- "delete the pink chair" -> CALL delete_furniture(objectName="chair", color="pink")
- "remove the blue table" -> CALL delete_furniture(objectName="table", color="blue")
- "get rid of the lamp" -> CALL delete_furniture(objectName="lamp")
- "delete this" -> CALL delete_furniture() with no parameters

Do NOT give conversational responses for delete/remove commands. ALWAYS use the tool.
When spawning, modelId MUST be one of the IDs listed below.
Answer questions about your abilities with a short plain sentence and no tool call.`

// SystemPrompt combines the instructions with an excerpt of the inventory.
func SystemPrompt(idx *inventory.Index) string {
	return systemPrompt + idx.Excerpt(excerptCategories, excerptRecords)
}

type Service struct {
	reasoner  Reasoner
	index     *inventory.Index
	tools     []command.Tool
	validator *command.Validator
	timeout   time.Duration
}

func NewService(r Reasoner, idx *inventory.Index, timeout time.Duration) (*Service, error) {
	if idx == nil {
		idx = inventory.Empty()
	}

	tools := command.Tools()
	v, err := command.NewValidator(tools, idx)
	if err != nil {
		return nil, err
	}

	return &Service{
		reasoner:  r,
		index:     idx,
		tools:     tools,
		validator: v,
		timeout:   timeout,
	}, nil
}

// Process runs one command through the reasoner and returns the action for
// the client. Reasoner errors are wrapped in ErrUpstream. Tool calls that
// fail validation come back as a query action carrying FallbackReply.
func (s *Service) Process(ctx context.Context, text string) (command.Action, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCommand
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	d, err := s.reasoner.Decide(ctx, Prompt{
		System:  SystemPrompt(s.index),
		Tools:   s.tools,
		Message: text,
	})
	metrics.ReasonerDuration.WithLabelValues(s.reasoner.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ReasonerFailures.WithLabelValues("upstream").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if d.Tool != nil {
		log.Debug("Tool used", "tool", d.Tool.Name, "args", d.Tool.Arguments)
		if err := s.validator.Validate(*d.Tool); err != nil {
			metrics.ReasonerFailures.WithLabelValues("invalid_tool_call").Inc()
			log.Warn("Rejected tool call", "tool", d.Tool.Name, "err", err)
			d = command.TextDecision(FallbackReply)
		}
	}

	action := command.Normalize(d)
	metrics.CommandsProcessed.WithLabelValues(action.Name()).Inc()

	return action, nil
}
