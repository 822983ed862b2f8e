// Package types defines the core data structures for the Engram memory engine:
// memories, entities, relationships, tags, and embeddings, plus the attribute
// bag and temporal helpers shared across storage backends.
package types

// Memory type constants - classify the purpose/nature of a memory.
const (
	MemoryTypeNote       = "note"
	MemoryTypeReminder   = "reminder"
	MemoryTypeFact       = "fact"
	MemoryTypeIdea       = "idea"
	MemoryTypeTask       = "task"
	MemoryTypePreference = "preference"
	MemoryTypeTranscript = "transcript"
)

// ValidMemoryTypes is a slice of all valid memory types for validation.
var ValidMemoryTypes = []string{
	MemoryTypeNote,
	MemoryTypeReminder,
	MemoryTypeFact,
	MemoryTypeIdea,
	MemoryTypeTask,
	MemoryTypePreference,
	MemoryTypeTranscript,
}

// IsValidMemoryType checks if the given memory type is valid.
func IsValidMemoryType(memoryType string) bool {
	for _, validType := range ValidMemoryTypes {
		if validType == memoryType {
			return true
		}
	}
	return false
}

// Entity type constants - broad categories for named real-world things.
// EntitySubtype refines these further (e.g. a person may be a colleague,
// family member, or friend) and is free-form.
const (
	EntityTypePerson       = "person"
	EntityTypePlace        = "place"
	EntityTypeOrganization = "organization"
	EntityTypeService      = "service"
	EntityTypePet          = "pet"
	EntityTypeVehicle      = "vehicle"
	EntityTypeProject      = "project"
	EntityTypeEvent        = "event"
	EntityTypeOther        = "other"
)

// ValidEntityTypes is a slice of all valid entity types for validation.
var ValidEntityTypes = []string{
	EntityTypePerson,
	EntityTypePlace,
	EntityTypeOrganization,
	EntityTypeService,
	EntityTypePet,
	EntityTypeVehicle,
	EntityTypeProject,
	EntityTypeEvent,
	EntityTypeOther,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(entityType string) bool {
	for _, validType := range ValidEntityTypes {
		if validType == entityType {
			return true
		}
	}
	return false
}

// Link type constants - how a memory references an entity.
const (
	LinkTypeMentioned = "mentioned"
	LinkTypeAbout     = "about"
	LinkTypeAttendee  = "attendee"
	LinkTypeCreatedBy = "created_by"
)

// ValidLinkTypes is a slice of all valid memory-entity link types.
var ValidLinkTypes = []string{
	LinkTypeMentioned,
	LinkTypeAbout,
	LinkTypeAttendee,
	LinkTypeCreatedBy,
}

// IsValidLinkType checks if the given link type is valid.
func IsValidLinkType(linkType string) bool {
	for _, validType := range ValidLinkTypes {
		if validType == linkType {
			return true
		}
	}
	return false
}

// Common relationship type constants. Relationship types are free-form
// strings; these constants cover the types the ingestion paths emit.
const (
	RelWorksAt    = "works_at"
	RelWorksWith  = "works_with"
	RelManages    = "manages"
	RelReportsTo  = "reports_to"
	RelMarriedTo  = "married_to"
	RelParentOf   = "parent_of"
	RelChildOf    = "child_of"
	RelFriendOf   = "friend_of"
	RelLivesIn    = "lives_in"
	RelMemberOf   = "member_of"
	RelOwns       = "owns"
	RelAttended   = "attended"
	RelKnows      = "knows"
	RelRelatesTo  = "relates_to"
)
