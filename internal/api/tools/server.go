package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/attribution"
	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/importer"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

const (
	serverName    = "engram"
	serverVersion = "1.0.0"
	protocolVer   = "2024-11-05"
)

// Server dispatches JSON-RPC 2.0 tool calls to the memory engine.
type Server struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// NewServer creates a tool server backed by the given engine.
func NewServer(eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{engine: eng, log: logger}
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. Protocol-level failures (parse errors, unknown methods) come back
// as JSON-RPC errors; tool-level failures come back as tool results with
// IsError set, per the MCP convention.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "parse error", err)
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize()
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: buildToolsList()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		// Direct JSON-RPC callers can skip the MCP envelope.
		result, err = s.dispatch(ctx, req.Method, req.Params)
		if errors.Is(err, errUnknownTool) {
			return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
		}
		if err == nil {
			result = envelope(result)
		}
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleInitialize() (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: protocolVer,
		Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
		ServerInfo:      MCPServerInfo{Name: serverName, Version: serverVersion},
	}, nil
}

// handleToolsCall unwraps the MCP envelope, dispatches, and wraps the result
// back into the content-block format.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	result, err := s.dispatch(ctx, p.Name, p.Arguments)
	if errors.Is(err, errUnknownTool) {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}
	if err != nil {
		failure, marshalErr := json.Marshal(ToolResult{Success: false, Message: err.Error()})
		if marshalErr != nil {
			return nil, marshalErr
		}
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: string(failure)}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(envelope(result))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

var errUnknownTool = errors.New("unknown tool")

// envelope wraps a tool's typed result in the uniform success envelope,
// lifting the result's message to the top level when it carries one.
func envelope(result interface{}) *ToolResult {
	out := &ToolResult{Success: true, Data: result}
	if m, ok := result.(interface{ resultMessage() string }); ok {
		out.Message = m.resultMessage()
	}
	return out
}

// dispatch routes a tool name to its typed handler.
func (s *Server) dispatch(ctx context.Context, name string, params interface{}) (interface{}, error) {
	switch name {
	case "store_person":
		var args StorePersonArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.StorePerson(ctx, args)
	case "store_note":
		var args StoreNoteArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.StoreNote(ctx, args)
	case "store_transcript":
		var args StoreTranscriptArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.StoreTranscript(ctx, args)
	case "store_preference":
		var args StorePreferenceArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.StorePreference(ctx, args)
	case "create_relationship":
		var args CreateRelationshipArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.CreateRelationship(ctx, args)
	case "recall_information":
		var args RecallArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.Recall(ctx, args)
	case "get_person_details":
		var args GetEntityDetailsArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		args.Type = types.EntityTypePerson
		return s.GetEntityDetails(ctx, args)
	case "get_entity_details":
		var args GetEntityDetailsArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.GetEntityDetails(ctx, args)
	case "get_upcoming_reminders":
		var args UpcomingRemindersArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.UpcomingReminders(ctx, args)
	case "import_markdown":
		var args ImportMarkdownArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.ImportMarkdown(ctx, args)
	case "list_all_people":
		var args ListPeopleArgs
		if err := unmarshalParams(params, &args); err != nil {
			return nil, err
		}
		return s.ListPeople(ctx, args)
	default:
		return nil, errUnknownTool
	}
}

// StorePerson creates or updates a person entity, optionally storing a note
// mentioning them in the same call.
func (s *Server) StorePerson(ctx context.Context, args StorePersonArgs) (*StorePersonResult, error) {
	entity, created, err := s.engine.FindOrCreateEntity(ctx, engine.EntityInput{
		EntityType:    types.EntityTypePerson,
		EntitySubtype: args.Subtype,
		Name:          args.Name,
		Email:         args.Email,
		Phone:         args.Phone,
		Attributes:    types.AttributeBag(args.Attributes),
	})
	if err != nil {
		return nil, err
	}

	if args.Note != "" {
		if _, err := s.engine.StoreNote(ctx, engine.NoteInput{
			Content: args.Note,
			People:  []string{entity.Name},
		}); err != nil {
			return nil, fmt.Errorf("person saved but note failed: %w", err)
		}
	}

	message := fmt.Sprintf("Updated %s with new information.", entity.Name)
	if created {
		message = fmt.Sprintf("Now tracking %s.", entity.Name)
	}
	return &StorePersonResult{Entity: entity, Created: created, Message: message}, nil
}

// StoreNote stores a note-like memory. Duplicate content returns the
// existing memory rather than creating a new one.
func (s *Server) StoreNote(ctx context.Context, args StoreNoteArgs) (*StoreNoteResult, error) {
	reminderAt, err := parseOptionalTime(args.ReminderAt, "reminder_at")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.StoreNote(ctx, engine.NoteInput{
		Content:    args.Content,
		Type:       args.Type,
		Tags:       args.Tags,
		People:     args.PeopleMentioned,
		ReminderAt: reminderAt,
		Metadata:   observerMetadata(),
	})
	if err != nil {
		return nil, err
	}

	out := &StoreNoteResult{
		ID:        result.Memory.ID,
		Created:   result.Created,
		Duplicate: !result.Created,
	}
	for _, entity := range result.Entities {
		out.Linked = append(out.Linked, entity.Name)
	}
	if result.Created {
		out.Message = "Memory stored."
	} else {
		out.Message = "This was already stored; returning the existing memory."
	}
	return out, nil
}

// StoreTranscript stores a meeting transcript with attendee links.
func (s *Server) StoreTranscript(ctx context.Context, args StoreTranscriptArgs) (*StoreTranscriptResult, error) {
	occurredAt, err := parseOptionalTime(args.OccurredAt, "occurred_at")
	if err != nil {
		return nil, err
	}

	result, err := s.engine.StoreTranscript(ctx, engine.TranscriptInput{
		Content:    args.Content,
		Title:      args.Title,
		Attendees:  args.Attendees,
		OccurredAt: occurredAt,
		Tags:       args.Tags,
	})
	if err != nil {
		return nil, err
	}

	out := &StoreTranscriptResult{
		ID:      result.Memory.ID,
		Summary: result.Memory.Summary,
		Message: "Transcript stored.",
	}
	for _, entity := range result.Entities {
		out.Attendees = append(out.Attendees, entity.Name)
	}
	return out, nil
}

// StorePreference records a preference, replacing any earlier value in the
// same category.
func (s *Server) StorePreference(ctx context.Context, args StorePreferenceArgs) (*StorePreferenceResult, error) {
	result, err := s.engine.StorePreference(ctx, engine.PreferenceInput{
		Category: args.Category,
		Content:  args.Content,
	})
	if err != nil {
		return nil, err
	}

	out := &StorePreferenceResult{ID: result.Memory.ID, Updated: !result.Created}
	if result.Created {
		out.Message = fmt.Sprintf("Preference recorded for %q.", args.Category)
	} else {
		out.Message = fmt.Sprintf("Preference for %q updated.", args.Category)
	}
	return out, nil
}

// CreateRelationship upserts a directed edge between two entities, creating
// endpoints as needed.
func (s *Server) CreateRelationship(ctx context.Context, args CreateRelationshipArgs) (*CreateRelationshipResult, error) {
	rel, created, err := s.engine.FindOrCreateRelationship(ctx, engine.RelationshipInput{
		FromName: args.FromEntity,
		FromType: defaultType(args.FromType),
		ToName:   args.ToEntity,
		ToType:   defaultType(args.ToType),
		Type:     args.Type,
		Metadata: args.Metadata,
	})
	if err != nil {
		return nil, err
	}

	out := &CreateRelationshipResult{ID: rel.ID, Created: created}
	if created {
		out.Message = fmt.Sprintf("Recorded: %s %s %s.", args.FromEntity, args.Type, args.ToEntity)
	} else {
		out.Message = "Relationship already known; merged the new details."
	}
	return out, nil
}

// Recall answers a natural-language query against stored memories.
func (s *Server) Recall(ctx context.Context, args RecallArgs) (*RecallResult, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	after, err := parseOptionalTime(args.CreatedAfter, "created_after")
	if err != nil {
		return nil, err
	}
	before, err := parseOptionalTime(args.CreatedBefore, "created_before")
	if err != nil {
		return nil, err
	}

	opts := engine.RecallOptions{
		Types:      args.Types,
		EntityName: args.Person,
		TagName:    args.Tag,
		Limit:      args.Limit,
	}
	if after != nil {
		opts.CreatedAfter = *after
	}
	if before != nil {
		opts.CreatedBefore = *before
	}

	hits, err := s.engine.Recall(ctx, args.Query, opts)
	if err != nil {
		return nil, err
	}

	out := &RecallResult{Total: len(hits), Memories: []RecalledMemory{}}
	for _, hit := range hits {
		out.Memories = append(out.Memories, recalledView(hit.Memory, hit.Score, hit.Source))
	}
	if len(hits) == 0 {
		out.Message = "Nothing stored matches that query."
	}
	return out, nil
}

// GetEntityDetails returns an entity with relationships and recent memories.
func (s *Server) GetEntityDetails(ctx context.Context, args GetEntityDetailsArgs) (*GetEntityDetailsResult, error) {
	if strings.TrimSpace(args.Ref) == "" {
		return nil, fmt.Errorf("%w: ref is required", storage.ErrInvalidInput)
	}

	details, err := s.engine.GetEntityDetails(ctx, args.Ref, args.Type)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &GetEntityDetailsResult{Found: false}, nil
		}
		return nil, err
	}

	out := &GetEntityDetailsResult{Entity: details.Entity, Found: true}
	for _, related := range details.Relationships {
		view := RelationshipView{Type: related.Relationship.Type}
		if related.Relationship.FromEntityID == details.Entity.ID {
			view.Direction = "outgoing"
			view.OtherID = related.Relationship.ToEntityID
		} else {
			view.Direction = "incoming"
			view.OtherID = related.Relationship.FromEntityID
		}
		if related.Other != nil {
			view.OtherName = related.Other.Name
		}
		out.Relationships = append(out.Relationships, view)
	}
	for _, memory := range details.Memories {
		out.Memories = append(out.Memories, recalledView(memory, 0, ""))
	}
	return out, nil
}

// UpcomingReminders lists reminders due within the horizon.
func (s *Server) UpcomingReminders(ctx context.Context, args UpcomingRemindersArgs) (*UpcomingRemindersResult, error) {
	horizon := time.Duration(args.HorizonHours) * time.Hour
	reminders, err := s.engine.UpcomingReminders(ctx, horizon, args.Limit)
	if err != nil {
		return nil, err
	}

	out := &UpcomingRemindersResult{Total: len(reminders), Reminders: []ReminderView{}}
	for _, r := range reminders {
		view := ReminderView{ID: r.ID, Content: r.Content}
		if r.ReminderAt != nil {
			view.DueAt = r.ReminderAt.UTC().Format(time.RFC3339)
		}
		out.Reminders = append(out.Reminders, view)
	}
	return out, nil
}

// ListPeople returns the tracked people, alphabetical.
func (s *Server) ListPeople(ctx context.Context, args ListPeopleArgs) (*ListPeopleResult, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	page, err := s.engine.ListPeople(ctx, args.Page, limit)
	if err != nil {
		return nil, err
	}

	out := &ListPeopleResult{
		Total:   page.Total,
		Page:    page.Page,
		HasMore: page.HasMore,
		People:  []PersonSummary{},
	}
	for _, entity := range page.Items {
		summary := PersonSummary{
			ID:           entity.ID,
			Name:         entity.Name,
			Subtype:      entity.EntitySubtype,
			Email:        entity.Email,
			MentionCount: entity.MentionCount,
		}
		if entity.LastMentionedAt != nil {
			summary.LastMentioned = entity.LastMentionedAt.UTC().Format(time.RFC3339)
		}
		out.People = append(out.People, summary)
	}
	return out, nil
}

// ImportMarkdown imports a directory of Markdown notes through the engine.
func (s *Server) ImportMarkdown(ctx context.Context, args ImportMarkdownArgs) (*ImportMarkdownResult, error) {
	if strings.TrimSpace(args.Path) == "" {
		return nil, fmt.Errorf("%w: path is required", storage.ErrInvalidInput)
	}

	imp := importer.NewVaultImporter(s.engine, s.log)
	result, err := imp.Import(ctx, args.Path)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Imported %d of %d files (%d duplicates, %d failed).",
		result.FilesImported, result.FilesFound, result.Duplicates, result.FilesFailed)
	return &ImportMarkdownResult{Imported: *result, Message: message}, nil
}

// recalledView renders a memory for tool output.
func recalledView(m types.Memory, score float64, source string) RecalledMemory {
	return RecalledMemory{
		ID:        m.ID,
		Type:      m.Type,
		Content:   m.Content,
		Summary:   m.Summary,
		Score:     score,
		Source:    source,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func defaultType(entityType string) string {
	if entityType == "" {
		return types.EntityTypePerson
	}
	return entityType
}

// unmarshalParams converts loosely-typed params (from JSON-RPC or the MCP
// arguments map) into a typed args struct via a marshal round trip.
func unmarshalParams(params interface{}, target interface{}) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// observerMetadata stamps who stored the memory, for later "where did this
// come from" questions.
func observerMetadata() map[string]interface{} {
	observer := attribution.DetectObserver()
	if observer == "" || observer == "unknown" {
		return nil
	}
	return map[string]interface{}{"observed_by": observer}
}

func parseOptionalTime(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid RFC-3339 timestamp %q: %w", field, value, err)
	}
	return &ts, nil
}

func (s *Server) successResponse(id, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, cause error) ([]byte, error) {
	rpcErr := &JSONRPCError{Code: code, Message: message}
	if cause != nil {
		rpcErr.Data = cause.Error()
	}
	s.log.Debug().Int("code", code).Str("message", message).Msg("returning JSON-RPC error")
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Error: rpcErr, ID: id})
}
