package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/storage/sqlite"
	"github.com/engramdev/engram/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := engine.New(store, nil, engine.Config{}, zerolog.Nop())
	return NewServer(eng, zerolog.Nop())
}

// call sends a tools/call request through the full JSON-RPC path and decodes
// the embedded tool result into target.
func call(t *testing.T, s *Server, tool string, args map[string]interface{}, target interface{}) {
	t.Helper()

	req, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  MCPToolCallParams{Name: tool, Arguments: args},
		ID:      1,
	})
	require.NoError(t, err)

	respBytes, err := s.HandleRequest(context.Background(), req)
	require.NoError(t, err)

	var resp struct {
		Result MCPToolCallResult `json:"result"`
		Error  *JSONRPCError     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.Nil(t, resp.Error)
	require.False(t, resp.Result.IsError, "tool error: %s", toolText(resp.Result))

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(resp.Result)), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, target))
}

// callExpectError sends a tools/call and asserts the tool reported an error.
func callExpectError(t *testing.T, s *Server, tool string, args map[string]interface{}) string {
	t.Helper()

	req, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  MCPToolCallParams{Name: tool, Arguments: args},
		ID:      1,
	})
	require.NoError(t, err)

	respBytes, err := s.HandleRequest(context.Background(), req)
	require.NoError(t, err)

	var resp struct {
		Result MCPToolCallResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	require.True(t, resp.Result.IsError)
	return toolText(resp.Result)
}

func toolText(result MCPToolCallResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	return result.Content[0].Text
}

func TestInitializeHandshake(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	require.NoError(t, err)

	var decoded struct {
		Result MCPInitializeResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	assert.Equal(t, "engram", decoded.Result.ServerInfo.Name)
	assert.NotNil(t, decoded.Result.Capabilities.Tools)
}

func TestToolsListExposesAllTools(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":2}`))
	require.NoError(t, err)

	var decoded struct {
		Result MCPToolsListResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))

	names := map[string]bool{}
	for _, tool := range decoded.Result.Tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s missing description", tool.Name)
		assert.NotNil(t, tool.InputSchema)
	}
	for _, want := range []string{
		"store_person", "store_note", "store_transcript", "store_preference",
		"create_relationship", "recall_information", "get_person_details",
		"get_entity_details", "get_upcoming_reminders", "list_all_people",
		"import_markdown",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
	assert.Len(t, decoded.Result.Tools, 11)
}

func TestParseErrorAndBadVersion(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp, err := s.HandleRequest(ctx, []byte(`{not json`))
	require.NoError(t, err)
	var decoded struct {
		Error *JSONRPCError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeParseError, decoded.Error.Code)

	resp, err = s.HandleRequest(ctx, []byte(`{"jsonrpc":"1.0","method":"tools/list","id":1}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeInvalidRequest, decoded.Error.Code)
}

func TestUnknownMethodAndUnknownTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	resp, err := s.HandleRequest(ctx, []byte(`{"jsonrpc":"2.0","method":"no_such_method","id":1}`))
	require.NoError(t, err)
	var decoded struct {
		Error *JSONRPCError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeMethodNotFound, decoded.Error.Code)

	text := callExpectError(t, s, "no_such_tool", nil)
	assert.Contains(t, text, "unknown tool")
}

func TestStoreNoteTool(t *testing.T) {
	s := newTestServer(t)

	var result StoreNoteResult
	call(t, s, "store_note", map[string]interface{}{
		"content":          "Sarah's birthday is March 3rd",
		"tags":             []string{"birthdays"},
		"people_mentioned": []string{"Sarah"},
	}, &result)

	assert.True(t, result.Created)
	assert.False(t, result.Duplicate)
	assert.Equal(t, []string{"Sarah"}, result.Linked)

	// Repeat: deduplicated.
	var repeat StoreNoteResult
	call(t, s, "store_note", map[string]interface{}{
		"content": "Sarah's birthday is March 3rd",
	}, &repeat)
	assert.True(t, repeat.Duplicate)
	assert.Equal(t, result.ID, repeat.ID)
}

func TestStoreNoteToolRejectsEmptyContent(t *testing.T) {
	s := newTestServer(t)
	text := callExpectError(t, s, "store_note", map[string]interface{}{"content": ""})
	assert.Contains(t, text, "content")
}

func TestStoreNoteStringifiedTags(t *testing.T) {
	s := newTestServer(t)

	// Some clients send arrays as JSON-encoded strings.
	var result StoreNoteResult
	call(t, s, "store_note", map[string]interface{}{
		"content": "note with stringified tags",
		"tags":    `["alpha","beta"]`,
	}, &result)
	assert.True(t, result.Created)
}

func TestStorePersonToolMerges(t *testing.T) {
	s := newTestServer(t)

	var first StorePersonResult
	call(t, s, "store_person", map[string]interface{}{
		"name":  "James",
		"email": "james@example.com",
	}, &first)
	assert.True(t, first.Created)

	var second StorePersonResult
	call(t, s, "store_person", map[string]interface{}{
		"name":       "James Holden",
		"email":      "james@example.com",
		"attributes": map[string]interface{}{"team": "operations"},
	}, &second)

	assert.False(t, second.Created)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)
	assert.Equal(t, "James Holden", second.Entity.Name)
	assert.Equal(t, "operations", second.Entity.Attributes["team"])
}

func TestStoreTranscriptTool(t *testing.T) {
	s := newTestServer(t)

	var result StoreTranscriptResult
	call(t, s, "store_transcript", map[string]interface{}{
		"content":   "we agreed to ship the beta next month",
		"title":     "planning sync",
		"attendees": []string{"Ana", "Ben"},
	}, &result)

	assert.NotEmpty(t, result.ID)
	assert.ElementsMatch(t, []string{"Ana", "Ben"}, result.Attendees)
}

func TestStorePreferenceTool(t *testing.T) {
	s := newTestServer(t)

	var first StorePreferenceResult
	call(t, s, "store_preference", map[string]interface{}{
		"category": "coffee",
		"content":  "flat white",
	}, &first)
	assert.False(t, first.Updated)

	var second StorePreferenceResult
	call(t, s, "store_preference", map[string]interface{}{
		"category": "coffee",
		"content":  "cortado",
	}, &second)
	assert.True(t, second.Updated)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateRelationshipTool(t *testing.T) {
	s := newTestServer(t)

	var first CreateRelationshipResult
	call(t, s, "create_relationship", map[string]interface{}{
		"from_entity": "Sarah",
		"to_entity":   "Initech",
		"to_type":     types.EntityTypeOrganization,
		"type":        "works_at",
	}, &first)
	assert.True(t, first.Created)

	var second CreateRelationshipResult
	call(t, s, "create_relationship", map[string]interface{}{
		"from_entity": "Sarah",
		"to_entity":   "Initech",
		"to_type":     types.EntityTypeOrganization,
		"type":        "works_at",
		"metadata":    map[string]interface{}{"role": "engineer"},
	}, &second)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
}

func TestRecallInformationTool(t *testing.T) {
	s := newTestServer(t)

	var stored StoreNoteResult
	call(t, s, "store_note", map[string]interface{}{
		"content": "the parking garage code is 4821",
	}, &stored)

	var result RecallResult
	call(t, s, "recall_information", map[string]interface{}{
		"query": "parking garage",
	}, &result)

	require.Equal(t, 1, result.Total)
	assert.Equal(t, stored.ID, result.Memories[0].ID)
	assert.Equal(t, "fulltext", result.Memories[0].Source)
}

func TestRecallRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	text := callExpectError(t, s, "recall_information", map[string]interface{}{})
	assert.Contains(t, text, "query")
}

func TestGetPersonDetailsTool(t *testing.T) {
	s := newTestServer(t)

	var person StorePersonResult
	call(t, s, "store_person", map[string]interface{}{"name": "Priya"}, &person)

	var rel CreateRelationshipResult
	call(t, s, "create_relationship", map[string]interface{}{
		"from_entity": "Priya",
		"to_entity":   "Globex",
		"to_type":     types.EntityTypeOrganization,
		"type":        "works_at",
	}, &rel)

	var details GetEntityDetailsResult
	call(t, s, "get_person_details", map[string]interface{}{"ref": "Priya"}, &details)

	require.True(t, details.Found)
	assert.Equal(t, person.Entity.ID, details.Entity.ID)
	require.Len(t, details.Relationships, 1)
	assert.Equal(t, "outgoing", details.Relationships[0].Direction)
	assert.Equal(t, "Globex", details.Relationships[0].OtherName)
}

func TestGetPersonDetailsNotFound(t *testing.T) {
	s := newTestServer(t)

	var details GetEntityDetailsResult
	call(t, s, "get_person_details", map[string]interface{}{"ref": "Nobody"}, &details)
	assert.False(t, details.Found)
}

func TestGetUpcomingRemindersTool(t *testing.T) {
	s := newTestServer(t)

	due := time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	var stored StoreNoteResult
	call(t, s, "store_note", map[string]interface{}{
		"content":     "renew passport",
		"type":        types.MemoryTypeReminder,
		"reminder_at": due,
	}, &stored)

	var result UpcomingRemindersResult
	call(t, s, "get_upcoming_reminders", map[string]interface{}{}, &result)

	require.Equal(t, 1, result.Total)
	assert.Equal(t, stored.ID, result.Reminders[0].ID)
	assert.NotEmpty(t, result.Reminders[0].DueAt)
}

func TestListAllPeopleTool(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"Zoe", "Aaron"} {
		var result StorePersonResult
		call(t, s, "store_person", map[string]interface{}{"name": name}, &result)
	}

	var result ListPeopleResult
	call(t, s, "list_all_people", map[string]interface{}{}, &result)

	require.Equal(t, 2, result.Total)
	assert.Equal(t, "Aaron", result.People[0].Name)
	assert.Equal(t, "Zoe", result.People[1].Name)
}

func TestDirectJSONRPCMethodDispatch(t *testing.T) {
	s := newTestServer(t)

	// Tool names also work as bare JSON-RPC methods without the MCP envelope.
	req := `{"jsonrpc":"2.0","method":"store_note","params":{"content":"direct call"},"id":7}`
	resp, err := s.HandleRequest(context.Background(), []byte(req))
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Success bool            `json:"success"`
			Data    StoreNoteResult `json:"data"`
		} `json:"result"`
		Error *JSONRPCError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	require.Nil(t, decoded.Error)
	assert.True(t, decoded.Result.Success)
	assert.True(t, decoded.Result.Data.Created)
}

func TestImportMarkdownTool(t *testing.T) {
	s := newTestServer(t)
	vault := t.TempDir()
	note := "---\ntitle: Standup Notes\ntags: [work]\n---\n\nDiscussed the launch with [[Priya Sharma]]."
	require.NoError(t, os.WriteFile(filepath.Join(vault, "standup.md"), []byte(note), 0o600))

	var result ImportMarkdownResult
	call(t, s, "import_markdown", map[string]interface{}{"path": vault}, &result)

	assert.Equal(t, 1, result.Imported.FilesImported)
	assert.Equal(t, 1, result.Imported.EntitiesLinked)
	assert.Contains(t, result.Message, "Imported 1 of 1")

	var recall RecallResult
	call(t, s, "recall_information", map[string]interface{}{"query": "launch"}, &recall)
	require.Len(t, recall.Memories, 1)
	assert.Contains(t, recall.Memories[0].Content, "Priya Sharma")
}

func TestImportMarkdownRequiresPath(t *testing.T) {
	s := newTestServer(t)
	text := callExpectError(t, s, "import_markdown", map[string]interface{}{})
	assert.Contains(t, text, "path")
}

func TestInvalidReminderTimestamp(t *testing.T) {
	s := newTestServer(t)
	text := callExpectError(t, s, "store_note", map[string]interface{}{
		"content":     "bad reminder",
		"reminder_at": "tomorrow-ish",
	})
	assert.Contains(t, text, "reminder_at")
}
