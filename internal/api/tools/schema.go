package tools

// buildToolsList returns the canonical tool definitions exposed via
// tools/list.
func buildToolsList() []MCPTool {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	integer := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "integer", "description": desc}
	}
	strArray := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": desc}
	}
	object := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "object", "description": desc}
	}

	return []MCPTool{
		{
			Name:        "store_person",
			Description: "Create or update a person. Matching is by email first, then by name (case-insensitive, tolerates partial names). Repeated observations merge: nothing already known is overwritten with less specific information.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]interface{}{
					"name":       str("Person's name (required)"),
					"subtype":    str("Refinement: colleague, family, friend, ..."),
					"email":      str("Email address; acts as the strongest identity key"),
					"phone":      str("Phone number"),
					"attributes": object("Open key-value facts (birthday, team, city, ...)"),
					"note":       str("Optional note to store alongside, linked to this person"),
				},
			},
		},
		{
			Name:        "store_note",
			Description: "Store a note, fact, idea, task, or reminder. Identical content is deduplicated: repeats return the existing memory. Mentioned people are linked to the memory.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"content":          str("The content to remember (required)"),
					"type":             str("note, fact, idea, task, or reminder (default: note)"),
					"tags":             strArray("Labels to attach"),
					"people_mentioned": strArray("Names of people referenced; linked (and created, for new notes)"),
					"reminder_at":      str("RFC-3339 due time; required for useful reminders"),
				},
			},
		},
		{
			Name:        "store_transcript",
			Description: "Store a meeting transcript. Never deduplicated. Long transcripts get a derived summary, and attendees are linked (created when unknown).",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"content":     str("Transcript text (required)"),
					"title":       str("Meeting title"),
					"attendees":   strArray("Attendee names"),
					"occurred_at": str("RFC-3339 meeting time"),
					"tags":        strArray("Labels to attach"),
				},
			},
		},
		{
			Name:        "store_preference",
			Description: "Record a user preference. One preference per category: a new value replaces the old one in place instead of accumulating contradictions.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"category", "content"},
				"properties": map[string]interface{}{
					"category": str("Preference category, e.g. coffee, meeting_times (required)"),
					"content":  str("The preference itself (required)"),
				},
			},
		},
		{
			Name:        "create_relationship",
			Description: "Record a directed relationship between two entities (e.g. Sarah works_at Initech). Unknown entities are created. A repeat of an existing edge merges metadata instead of duplicating.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"from_entity", "to_entity", "type"},
				"properties": map[string]interface{}{
					"from_entity": str("Source entity name (required)"),
					"from_type":   str("Source entity type (default: person)"),
					"to_entity":   str("Target entity name (required)"),
					"to_type":     str("Target entity type (default: person)"),
					"type":        str("Relationship type, e.g. works_at, married_to, manages (required)"),
					"metadata":    object("Extra details about the relationship"),
				},
			},
		},
		{
			Name:        "recall_information",
			Description: "Search stored memories with a natural-language query. Uses semantic similarity when embeddings are available, falling back to full-text search. Results are ranked best-first.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":          str("Natural-language query (required)"),
					"types":          strArray("Restrict to these memory types"),
					"person":         str("Restrict to memories linked to this person"),
					"tag":            str("Restrict to memories carrying this tag"),
					"created_after":  str("RFC-3339 lower bound for created_at"),
					"created_before": str("RFC-3339 upper bound for created_at"),
					"limit":          integer("Max results (default 10)"),
				},
			},
		},
		{
			Name:        "get_person_details",
			Description: "Get everything known about a person: profile, relationships, and recent memories mentioning them.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"ref"},
				"properties": map[string]interface{}{
					"ref": str("Person's name or entity ID (required)"),
				},
			},
		},
		{
			Name:        "get_entity_details",
			Description: "Get everything known about any tracked entity (place, organization, pet, ...): profile, relationships, recent memories.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"ref"},
				"properties": map[string]interface{}{
					"ref":  str("Entity name or ID (required)"),
					"type": str("Entity type to narrow a name lookup"),
				},
			},
		},
		{
			Name:        "get_upcoming_reminders",
			Description: "List reminders due within the look-ahead window, soonest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"horizon_hours": integer("Look-ahead window in hours (default: one week)"),
					"limit":         integer("Max results"),
				},
			},
		},
		{
			Name:        "import_markdown",
			Description: "Import a directory of Markdown notes (e.g. an Obsidian vault). Frontmatter and #hashtags become tags, [[wiki-links]] become linked entities, duplicate content is skipped.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]interface{}{
					"path": str("Directory to import (required)"),
				},
			},
		},
		{
			Name:        "list_all_people",
			Description: "List all tracked people alphabetically with mention counts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": integer("Max results per page (default 50)"),
					"page":  integer("1-indexed page number"),
				},
			},
		},
	}
}
