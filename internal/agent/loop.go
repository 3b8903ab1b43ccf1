package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/taskpilot/internal/llm"
	"github.com/taskpilot/pkg/models"
)

// ErrAssistantUnavailable indicates the model gateway itself failed or timed
// out. The whole exchange is aborted and nothing is persisted; tool-level
// failures never produce this error.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// systemPrompt is the fixed instruction prepended to every exchange
const systemPrompt = `You are a helpful todo management assistant. Help users manage their tasks through natural conversation.

Your capabilities:
- Add new tasks
- List existing tasks (all, completed, or incomplete)
- Update task titles
- Delete tasks
- Mark tasks as complete or incomplete

Guidelines:
1. Always confirm actions you take with friendly, clear messages
2. If the user's intent is unclear, ask a clarifying question
3. Stay focused on todo management - politely redirect off-topic questions
4. When listing tasks, format them in a readable way
5. Be concise but friendly
6. When a task operation fails, explain the issue clearly

When you need to perform a task operation, use the available tools.
Always use tools when the user wants to add, list, update, delete, or complete tasks.`

// fallbackResponse is returned when the model yields no text
const fallbackResponse = "I'm not sure how to help with that."

// Outcome is the terminal result of one orchestration run
type Outcome struct {
	Response string
	Ledger   []models.ToolCall
}

// Agent drives a bounded sequence of model calls interleaved with capability
// executions until a final natural-language answer is produced. One Agent is
// constructed per request, bound to one registry.
type Agent struct {
	gateway   llm.Gateway
	registry  *Registry
	maxRounds int
}

// New creates an agent. maxRounds caps the number of model calls per
// exchange so a model that keeps requesting tools cannot loop forever.
func New(gateway llm.Gateway, registry *Registry, maxRounds int) *Agent {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Agent{
		gateway:   gateway,
		registry:  registry,
		maxRounds: maxRounds,
	}
}

// Run processes one user message against the bounded conversation history.
// History entries with roles other than user/assistant are not replayed;
// tool-role entries are synthesized fresh inside the loop.
func (a *Agent) Run(ctx context.Context, userMessage string, history []models.Message) (*Outcome, error) {
	messages := buildContext(userMessage, history)
	catalog := a.registry.Catalog()

	ledger := []models.ToolCall{}
	lastText := ""

	for round := 0; round < a.maxRounds; round++ {
		completion, err := a.gateway.Complete(ctx, messages, catalog)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
		}

		if completion.Text != "" {
			lastText = completion.Text
		}

		if len(completion.ToolCalls) == 0 {
			return &Outcome{
				Response: textOrFallback(lastText),
				Ledger:   ledger,
			}, nil
		}

		// Record the assistant turn that requested the tools so the next
		// model call can correlate results with requests.
		assistantTurn := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if completion.Text != "" {
			assistantTurn.Parts = append(assistantTurn.Parts, llms.TextPart(completion.Text))
		}
		for _, call := range completion.ToolCalls {
			assistantTurn.Parts = append(assistantTurn.Parts, call)
		}
		messages = append(messages, assistantTurn)

		// Execute each requested call in order
		for _, call := range completion.ToolCalls {
			entry, toolMsg := a.executeCall(ctx, call)
			ledger = append(ledger, entry)
			messages = append(messages, toolMsg)
		}
	}

	log.Warn().
		Int("max_rounds", a.maxRounds).
		Int("ledger_entries", len(ledger)).
		Msg("Orchestration round cap reached, returning best-effort answer")

	return &Outcome{
		Response: textOrFallback(lastText),
		Ledger:   ledger,
	}, nil
}

// executeCall runs one requested tool invocation. Every failure mode is
// absorbed into an error result; nothing here aborts the round.
func (a *Agent) executeCall(ctx context.Context, call llms.ToolCall) (models.ToolCall, llms.MessageContent) {
	name := ""
	rawArgs := ""
	if call.FunctionCall != nil {
		name = call.FunctionCall.Name
		rawArgs = call.FunctionCall.Arguments
	}

	input := json.RawMessage(`{}`)
	var result Result

	decoded, err := llm.DecodeArguments(rawArgs)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Failed to parse tool arguments")
		result = Failure(CategoryInvalidInput, "Failed to parse tool arguments")
	} else {
		input = decoded
		result, err = a.registry.Execute(ctx, name, input)
		if errors.Is(err, ErrToolNotFound) {
			log.Warn().Str("tool", name).Msg("Model requested unknown tool")
			result = Failure(CategoryInvalidInput, fmt.Sprintf("Tool not found: %s", name))
		}
	}

	output, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		output = json.RawMessage(`{"status":"error","error":"execution_error","message":"failed to encode tool result"}`)
	}

	log.Debug().
		Str("tool", name).
		Str("status", string(result.Status)).
		Msg("Tool call executed")

	entry := models.ToolCall{
		Tool:   name,
		Input:  input,
		Output: output,
		Status: string(result.Status),
	}

	toolMsg := llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       name,
				Content:    string(output),
			},
		},
	}

	return entry, toolMsg
}

// buildContext assembles the ordered message sequence for the first model
// call: fixed system instruction, bounded history oldest-first, then the
// new user message.
func buildContext(userMessage string, history []models.Message) []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
	}

	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case models.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		default:
			// Tool messages and anything else are excluded from replay
		}
	}

	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, userMessage))
	return messages
}

func textOrFallback(text string) string {
	if text == "" {
		return fallbackResponse
	}
	return text
}
