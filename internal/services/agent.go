package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/normalization"
	"github.com/docuvault/docuvault-backend/internal/repos"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/types"
)

const (
	// maxToolRounds bounds how many tool invocations one user turn may spend
	// before the agent must answer with what it has.
	maxToolRounds = 3

	// memoryRerollEvery re-summarizes the session after this many new
	// messages, keeping the prompt context bounded for long sessions.
	memoryRerollEvery = 8

	// recentMessageWindow is how many raw messages ride along with the
	// memory summary.
	recentMessageWindow = 12
)

// AgentTurn is the outcome of one user message: the assistant reply plus the
// tool calls it made along the way.
type AgentTurn struct {
	Session  *types.AgentSession   `json:"session"`
	Messages []*types.AgentMessage `json:"messages"`
	Reply    string                `json:"reply"`
}

type AgentService interface {
	CreateSession(ctx context.Context, title string) (*types.AgentSession, error)
	ListSessions(ctx context.Context) ([]*types.AgentSession, error)
	GetTranscript(ctx context.Context, sessionID uuid.UUID) (*types.AgentSession, []*types.AgentMessage, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	SendMessage(ctx context.Context, sessionID uuid.UUID, content string) (*AgentTurn, error)
}

type agentService struct {
	dbc         *gorm.DB
	log         *logger.Logger
	ai          AIClient
	registry    *ToolRegistry
	sessionRepo repos.AgentSessionRepo
	messageRepo repos.AgentMessageRepo
}

func NewAgentService(
	dbc *gorm.DB,
	log *logger.Logger,
	ai AIClient,
	registry *ToolRegistry,
	sessionRepo repos.AgentSessionRepo,
	messageRepo repos.AgentMessageRepo,
) AgentService {
	return &agentService{
		dbc:         dbc,
		log:         log.With("service", "AgentService"),
		ai:          ai,
		registry:    registry,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
	}
}

var agentActionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action":    map[string]any{"type": "string", "enum": []string{"respond", "tool"}},
		"reply":     map[string]any{"type": "string"},
		"tool_name": map[string]any{"type": "string"},
		"tool_args": map[string]any{"type": "object", "additionalProperties": true},
	},
	"required":             []string{"action", "reply", "tool_name", "tool_args"},
	"additionalProperties": false,
}

var memorySummarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
	},
	"required":             []string{"summary"},
	"additionalProperties": false,
}

func (ag *agentService) mustScope(ctx context.Context) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil || rd.TenantID == uuid.Nil {
		return nil, fmt.Errorf("No tenant scope on request")
	}
	return rd, nil
}

func (ag *agentService) CreateSession(ctx context.Context, title string) (*types.AgentSession, error) {
	rd, err := ag.mustScope(ctx)
	if err != nil {
		return nil, err
	}
	title = normalization.TrimInputString(title)
	if title == "" {
		title = "New session"
	}
	created, err := ag.sessionRepo.Create(ctx, nil, []*types.AgentSession{{
		TenantID: rd.TenantID,
		UserID:   rd.UserID,
		Title:    title,
	}})
	if err != nil {
		return nil, fmt.Errorf("Failed to create session: %w", err)
	}
	return created[0], nil
}

func (ag *agentService) ListSessions(ctx context.Context) ([]*types.AgentSession, error) {
	rd, err := ag.mustScope(ctx)
	if err != nil {
		return nil, err
	}
	return ag.sessionRepo.ListByTenantAndUser(ctx, nil, rd.TenantID, rd.UserID)
}

func (ag *agentService) sessionForCaller(ctx context.Context, sessionID uuid.UUID) (*types.AgentSession, error) {
	rd, err := ag.mustScope(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := ag.sessionRepo.GetByIDs(ctx, nil, []uuid.UUID{sessionID})
	if err != nil {
		return nil, fmt.Errorf("Failed to load session: %w", err)
	}
	if len(sessions) == 0 || sessions[0].TenantID != rd.TenantID || sessions[0].UserID != rd.UserID {
		return nil, fmt.Errorf("Session not found")
	}
	return sessions[0], nil
}

func (ag *agentService) GetTranscript(ctx context.Context, sessionID uuid.UUID) (*types.AgentSession, []*types.AgentMessage, error) {
	session, err := ag.sessionForCaller(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := ag.messageRepo.ListBySessionID(ctx, nil, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to load messages: %w", err)
	}
	return session, messages, nil
}

func (ag *agentService) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	session, err := ag.sessionForCaller(ctx, sessionID)
	if err != nil {
		return err
	}
	return ag.dbc.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ag.messageRepo.FullDeleteBySessionIDs(ctx, tx, []uuid.UUID{session.ID}); err != nil {
			return fmt.Errorf("Failed to delete messages: %w", err)
		}
		return ag.sessionRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{session.ID})
	})
}

// SendMessage runs one agent turn: persist the user message, loop model ->
// tool up to maxToolRounds, persist every step, then re-roll the session
// memory when enough messages have accumulated.
func (ag *agentService) SendMessage(ctx context.Context, sessionID uuid.UUID, content string) (*AgentTurn, error) {
	rd, err := ag.mustScope(ctx)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("Message content is required")
	}
	session, err := ag.sessionForCaller(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	seq := session.MessageCount
	turnMessages := []*types.AgentMessage{{
		SessionID: session.ID,
		Role:      types.AgentRoleUser,
		Content:   content,
		Seq:       seq,
	}}
	seq++

	history, err := ag.messageRepo.ListRecentBySessionID(ctx, nil, session.ID, recentMessageWindow)
	if err != nil {
		return nil, fmt.Errorf("Failed to load history: %w", err)
	}

	transcript := ag.renderTranscript(session.MemorySummary, history)
	transcript += fmt.Sprintf("user: %s\n", content)

	var reply string
	for round := 0; ; round++ {
		system := ag.systemPrompt(round >= maxToolRounds)
		obj, err := ag.ai.GenerateJSON(ctx, system, transcript, "agent_action", agentActionSchema)
		if err != nil {
			return nil, fmt.Errorf("Agent call failed: %w", err)
		}

		action, _ := obj["action"].(string)
		if action != "tool" || round >= maxToolRounds {
			reply, _ = obj["reply"].(string)
			reply = strings.TrimSpace(reply)
			if reply == "" {
				reply = "I could not produce an answer for that."
			}
			break
		}

		toolName, _ := obj["tool_name"].(string)
		toolArgs, _ := obj["tool_args"].(map[string]any)
		result := ag.invokeTool(ctx, rd.TenantID, toolName, toolArgs)

		payload, _ := json.Marshal(map[string]any{"args": toolArgs, "result": result})
		turnMessages = append(turnMessages, &types.AgentMessage{
			SessionID:   session.ID,
			Role:        types.AgentRoleTool,
			Content:     result,
			ToolName:    toolName,
			ToolPayload: datatypes.JSON(payload),
			Seq:         seq,
		})
		seq++

		transcript += fmt.Sprintf("tool %s: %s\n", toolName, result)
	}

	turnMessages = append(turnMessages, &types.AgentMessage{
		SessionID: session.ID,
		Role:      types.AgentRoleAssistant,
		Content:   reply,
		Seq:       seq,
	})
	seq++

	err = ag.dbc.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ag.messageRepo.Create(ctx, tx, turnMessages); err != nil {
			return fmt.Errorf("Failed to persist turn: %w", err)
		}
		return ag.sessionRepo.UpdateFields(ctx, tx, session.ID, map[string]interface{}{
			"message_count": seq,
		})
	})
	if err != nil {
		return nil, err
	}
	session.MessageCount = seq

	if seq-lastSummaryCount(session) >= memoryRerollEvery {
		if err := ag.rerollMemory(ctx, session); err != nil {
			ag.log.Warn("Memory re-roll failed", "sessionID", session.ID, "error", err.Error())
		}
	}

	return &AgentTurn{Session: session, Messages: turnMessages, Reply: reply}, nil
}

func (ag *agentService) systemPrompt(forceRespond bool) string {
	var b strings.Builder
	b.WriteString("You are DocuVault's workspace assistant. You answer questions about the tenant's files using the tools below.\n")
	b.WriteString("Available tools:\n")
	b.WriteString(ag.registry.Describe())
	if forceRespond {
		b.WriteString("You have used all tool calls for this turn. Set action to respond and answer with what you have.\n")
	} else {
		b.WriteString("To call a tool set action to tool and fill tool_name and tool_args. To answer set action to respond and fill reply. Leave unused fields as empty string or empty object.\n")
	}
	b.WriteString("Never invent file contents. If a tool result says not found, say so.")
	return b.String()
}

func (ag *agentService) renderTranscript(summary string, history []*types.AgentMessage) string {
	var b strings.Builder
	if summary != "" {
		fmt.Fprintf(&b, "Conversation so far (summary): %s\n\n", summary)
	}
	for _, m := range history {
		switch m.Role {
		case types.AgentRoleTool:
			fmt.Fprintf(&b, "tool %s: %s\n", m.ToolName, m.Content)
		default:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}

// invokeTool never fails the turn: tool errors are reported back to the model
// as text so it can recover or apologize.
func (ag *agentService) invokeTool(ctx context.Context, tenantID uuid.UUID, name string, args map[string]any) string {
	tool, ok := ag.registry.Get(name)
	if !ok {
		return fmt.Sprintf("error: unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := tool.Invoke(ctx, tenantID, args)
	if err != nil {
		ag.log.Warn("Tool invocation failed", "tool", name, "error", err.Error())
		return fmt.Sprintf("error: %s", err.Error())
	}
	return result
}

// rerollMemory condenses the full transcript into a fresh summary and stores
// the message count it covered so the next re-roll triggers on new growth.
func (ag *agentService) rerollMemory(ctx context.Context, session *types.AgentSession) error {
	messages, err := ag.messageRepo.ListBySessionID(ctx, nil, session.ID)
	if err != nil {
		return err
	}
	transcript := ag.renderTranscript("", messages)

	obj, err := ag.ai.GenerateJSON(ctx,
		"Summarize this conversation for future context. Keep file names, ids and decisions. Stay under 200 words.",
		transcript, "memory_summary", memorySummarySchema)
	if err != nil {
		return err
	}
	summary, _ := obj["summary"].(string)
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("model produced an empty summary")
	}

	stamped := fmt.Sprintf("[through %d] %s", session.MessageCount, summary)
	if err := ag.sessionRepo.UpdateFields(ctx, nil, session.ID, map[string]interface{}{
		"memory_summary": stamped,
	}); err != nil {
		return err
	}
	session.MemorySummary = stamped
	return nil
}

// lastSummaryCount parses the "[through N]" stamp on the stored summary.
func lastSummaryCount(session *types.AgentSession) int {
	s := session.MemorySummary
	if !strings.HasPrefix(s, "[through ") {
		return 0
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(s[:end+1], "[through %d]", &n); err != nil {
		return 0
	}
	return n
}
