// Package importer walks Obsidian vaults and generic Markdown folders and
// stores their notes as engram memories. Wiki links become linked entities,
// frontmatter and inline hashtags become tags.
package importer

import (
	"regexp"
	"strings"
)

// wikilinkRe matches [[link]] and [[link|alias]] patterns.
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// WikiLink is a parsed [[wiki-link]].
type WikiLink struct {
	// Target is the note or page name being linked to.
	Target string

	// Alias is the display text when [[target|alias]] syntax is used.
	Alias string

	// Raw is the full original [[...]] text.
	Raw string
}

// ExtractWikiLinks finds all [[wiki-link]] patterns in the content,
// deduplicated by target and ordered by first appearance.
func ExtractWikiLinks(content string) []WikiLink {
	matches := wikilinkRe.FindAllStringSubmatch(content, -1)

	seen := make(map[string]bool)
	var links []WikiLink

	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		key := strings.ToLower(target)
		if seen[key] {
			continue
		}
		seen[key] = true

		links = append(links, WikiLink{
			Target: target,
			Alias:  strings.TrimSpace(m[2]),
			Raw:    m[0],
		})
	}

	return links
}

// StripWikiLinks replaces [[wiki-links]] with their display text: the alias
// when present, the target name otherwise.
func StripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if len(parts) >= 3 && strings.TrimSpace(parts[2]) != "" {
			return strings.TrimSpace(parts[2])
		}
		return strings.TrimSpace(parts[1])
	})
}
