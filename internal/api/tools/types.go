// Package tools implements the JSON-RPC 2.0 tool surface for Engram.
// AI assistants call these tools over stdio to store and recall memories,
// track people, and manage relationships.
package tools

import (
	"encoding/json"
	"strings"

	"github.com/engramdev/engram/internal/importer"
	"github.com/engramdev/engram/pkg/types"
)

// StorePersonArgs contains arguments for the store_person tool.
type StorePersonArgs struct {
	Name       string                 `json:"name"`                 // Person's name (required)
	Subtype    string                 `json:"subtype,omitempty"`    // Refinement: colleague, family, friend, ...
	Email      string                 `json:"email,omitempty"`      // Email address (identity key)
	Phone      string                 `json:"phone,omitempty"`      // Phone number
	Attributes map[string]interface{} `json:"attributes,omitempty"` // Open attributes (birthday, team, city, ...)
	Note       string                 `json:"note,omitempty"`       // Optional note to store alongside
}

// StorePersonResult contains the result of storing a person.
type StorePersonResult struct {
	Entity  *types.Entity `json:"entity"`
	Created bool          `json:"created"` // false when the observation merged into an existing person
	Message string        `json:"message"`
}

// StoreNoteArgs contains arguments for the store_note tool.
type StoreNoteArgs struct {
	Content         string   `json:"content"`                    // Note content (required)
	Type            string   `json:"type,omitempty"`             // note, fact, idea, task, or reminder (default: note)
	Tags            []string `json:"tags,omitempty"`             // Labels to attach
	PeopleMentioned []string `json:"people_mentioned,omitempty"` // Names of people referenced in the note
	ReminderAt      string   `json:"reminder_at,omitempty"`      // RFC-3339 due time (reminders only)
}

// UnmarshalJSON accepts tags/people sent either as JSON arrays or as
// JSON-encoded strings ("[\"a\",\"b\"]"); some clients emit the latter.
func (a *StoreNoteArgs) UnmarshalJSON(data []byte) error {
	type alias StoreNoteArgs
	aux := &struct {
		Tags            json.RawMessage `json:"tags,omitempty"`
		PeopleMentioned json.RawMessage `json:"people_mentioned,omitempty"`
		*alias
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Tags = flexibleStringList(aux.Tags)
	a.PeopleMentioned = flexibleStringList(aux.PeopleMentioned)
	return nil
}

// flexibleStringList decodes a raw value as a string array, a JSON-encoded
// array string, or a comma-separated string, in that order of preference.
func flexibleStringList(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &list)
		return list
	}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// StoreNoteResult contains the result of storing a note.
type StoreNoteResult struct {
	ID        string   `json:"id"`
	Created   bool     `json:"created"`
	Duplicate bool     `json:"duplicate,omitempty"` // content hash matched an existing memory
	Linked    []string `json:"linked,omitempty"`    // names of entities linked to the memory
	Message   string   `json:"message"`
}

// StoreTranscriptArgs contains arguments for the store_transcript tool.
type StoreTranscriptArgs struct {
	Content    string   `json:"content"`               // Transcript text (required)
	Title      string   `json:"title,omitempty"`       // Meeting title
	Attendees  []string `json:"attendees,omitempty"`   // Attendee names (created when unknown)
	OccurredAt string   `json:"occurred_at,omitempty"` // RFC-3339 meeting time
	Tags       []string `json:"tags,omitempty"`
}

// StoreTranscriptResult contains the result of storing a transcript.
type StoreTranscriptResult struct {
	ID        string   `json:"id"`
	Summary   string   `json:"summary,omitempty"` // derived summary for long transcripts
	Attendees []string `json:"attendees,omitempty"`
	Message   string   `json:"message"`
}

// StorePreferenceArgs contains arguments for the store_preference tool.
type StorePreferenceArgs struct {
	Category string `json:"category"` // Preference category, e.g. "coffee" (required)
	Content  string `json:"content"`  // The preference itself (required)
}

// StorePreferenceResult contains the result of storing a preference.
type StorePreferenceResult struct {
	ID      string `json:"id"`
	Updated bool   `json:"updated"` // true when an existing preference was replaced in place
	Message string `json:"message"`
}

// CreateRelationshipArgs contains arguments for the create_relationship tool.
type CreateRelationshipArgs struct {
	FromEntity string                 `json:"from_entity"`         // Source entity name (required)
	FromType   string                 `json:"from_type,omitempty"` // Source entity type (default: person)
	ToEntity   string                 `json:"to_entity"`           // Target entity name (required)
	ToType     string                 `json:"to_type,omitempty"`   // Target entity type (default: person)
	Type       string                 `json:"type"`                // Relationship type, e.g. works_at (required)
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// CreateRelationshipResult contains the result of creating a relationship.
type CreateRelationshipResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"` // false when the edge already existed and absorbed the metadata
	Message string `json:"message"`
}

// RecallArgs contains arguments for the recall_information tool.
type RecallArgs struct {
	Query         string   `json:"query"`                    // Natural-language query (required)
	Types         []string `json:"types,omitempty"`          // Restrict to these memory types
	Person        string   `json:"person,omitempty"`         // Restrict to memories linked to this person
	Tag           string   `json:"tag,omitempty"`            // Restrict to memories carrying this tag
	CreatedAfter  string   `json:"created_after,omitempty"`  // RFC-3339 lower bound
	CreatedBefore string   `json:"created_before,omitempty"` // RFC-3339 upper bound
	Limit         int      `json:"limit,omitempty"`          // Max results (default 10)
}

// RecalledMemory is one recall hit in a tool response.
type RecalledMemory struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Content   string  `json:"content"`
	Summary   string  `json:"summary,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Source    string  `json:"source"` // semantic or fulltext
	CreatedAt string  `json:"created_at"`
}

// RecallResult contains the result of a recall.
type RecallResult struct {
	Memories []RecalledMemory `json:"memories"`
	Total    int              `json:"total"`
	Message  string           `json:"message,omitempty"`
}

// GetEntityDetailsArgs contains arguments for get_person_details and
// get_entity_details. Ref may be a name or an entity ID.
type GetEntityDetailsArgs struct {
	Ref  string `json:"ref"`            // Entity name or ID (required)
	Type string `json:"type,omitempty"` // Entity type to narrow name lookup (get_entity_details only)
}

// RelationshipView is a relationship rendered for tool output.
type RelationshipView struct {
	Type      string `json:"type"`
	Direction string `json:"direction"` // outgoing or incoming
	OtherName string `json:"other_name,omitempty"`
	OtherID   string `json:"other_id"`
}

// GetEntityDetailsResult contains an entity with its context.
type GetEntityDetailsResult struct {
	Entity        *types.Entity      `json:"entity"`
	Relationships []RelationshipView `json:"relationships,omitempty"`
	Memories      []RecalledMemory   `json:"memories,omitempty"`
	Found         bool               `json:"found"`
}

// UpcomingRemindersArgs contains arguments for the get_upcoming_reminders tool.
type UpcomingRemindersArgs struct {
	HorizonHours int `json:"horizon_hours,omitempty"` // Look-ahead window (default: 1 week)
	Limit        int `json:"limit,omitempty"`
}

// ReminderView is a reminder rendered for tool output.
type ReminderView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	DueAt   string `json:"due_at"`
}

// UpcomingRemindersResult contains the result of listing reminders.
type UpcomingRemindersResult struct {
	Reminders []ReminderView `json:"reminders"`
	Total     int            `json:"total"`
}

// ListPeopleArgs contains arguments for the list_all_people tool.
type ListPeopleArgs struct {
	Limit int `json:"limit,omitempty"` // Max results per page (default 50)
	Page  int `json:"page,omitempty"`  // 1-indexed page number
}

// PersonSummary is one row in the list_all_people output.
type PersonSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Subtype       string `json:"subtype,omitempty"`
	Email         string `json:"email,omitempty"`
	MentionCount  int    `json:"mention_count"`
	LastMentioned string `json:"last_mentioned,omitempty"`
}

// ListPeopleResult contains the result of listing people.
type ListPeopleResult struct {
	People  []PersonSummary `json:"people"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	HasMore bool            `json:"has_more"`
}

// ImportMarkdownArgs contains arguments for the import_markdown tool.
type ImportMarkdownArgs struct {
	Path string `json:"path"` // Directory of Markdown notes to import
}

// ImportMarkdownResult contains the result of a vault import.
type ImportMarkdownResult struct {
	Imported importer.Result `json:"imported"`
	Message  string          `json:"message"`
}

// ToolResult is the uniform envelope every tool call returns: whether the
// operation succeeded, a human-readable message, and the tool-specific data.
type ToolResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (r *StorePersonResult) resultMessage() string        { return r.Message }
func (r *StoreNoteResult) resultMessage() string          { return r.Message }
func (r *StoreTranscriptResult) resultMessage() string    { return r.Message }
func (r *StorePreferenceResult) resultMessage() string    { return r.Message }
func (r *CreateRelationshipResult) resultMessage() string { return r.Message }
func (r *RecallResult) resultMessage() string             { return r.Message }
func (r *ImportMarkdownResult) resultMessage() string     { return r.Message }

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"` // string, number, or null
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters of an initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters of a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
