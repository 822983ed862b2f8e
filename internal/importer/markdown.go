package importer

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ParsedFile is a single parsed Markdown note.
type ParsedFile struct {
	// Path is the absolute filesystem path to the file.
	Path string

	// RelativePath is the path relative to the import root.
	RelativePath string

	// Title comes from frontmatter, the first H1 heading, or the filename.
	Title string

	// Content is the note rendered for storage: title heading plus the body
	// with wiki links flattened to plain text.
	Content string

	// Frontmatter holds the parsed YAML frontmatter.
	Frontmatter map[string]interface{}

	// Tags merges frontmatter tags with inline #tags.
	Tags []string

	// WikiLinks are all [[link]] targets referenced by the note.
	WikiLinks []WikiLink

	// Timestamp is the frontmatter date, or zero when absent.
	Timestamp time.Time
}

// ParseMarkdownFile parses one Markdown file's content. relativePath names
// the file in errors and provides the fallback title.
func ParseMarkdownFile(content []byte, absolutePath, relativePath string) (*ParsedFile, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("frontmatter parse error in %s: %w", relativePath, err)
	}

	title := extractString(fm, "title", "")
	if title == "" {
		title = extractH1(body)
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}

	tags := mergeTags(extractTags(fm), extractInlineTags(body))

	return &ParsedFile{
		Path:         absolutePath,
		RelativePath: relativePath,
		Title:        title,
		Content:      buildContent(title, StripWikiLinks(body)),
		Frontmatter:  fm,
		Tags:         tags,
		WikiLinks:    ExtractWikiLinks(body),
		Timestamp:    extractTimestamp(fm),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the body. Returns an empty map and the full text when no frontmatter is
// found.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		// No closing delimiter, treat the whole file as body.
		return map[string]interface{}{}, text, nil
	}

	fm := make(map[string]interface{})
	fmText := strings.Join(lines[1:closeIdx], "\n")
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return map[string]interface{}{}, text, fmt.Errorf("invalid YAML: %w", err)
	}

	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// titleFromPath derives a readable title from the file name.
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.TrimSpace(name)
}

// extractH1 returns the text of the first ATX heading in the body.
func extractH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// extractTags reads frontmatter tags in both list and comma-string forms.
func extractTags(fm map[string]interface{}) []string {
	raw, ok := fm["tags"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []interface{}:
		var tags []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		var tags []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return nil
}

// extractTimestamp reads a date field from frontmatter, trying common layouts.
func extractTimestamp(fm map[string]interface{}) time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
	}

	for _, key := range []string{"date", "created", "created_at", "updated_at"} {
		raw, ok := fm[key]
		if !ok {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case time.Time:
			return v
		default:
			s = fmt.Sprintf("%v", v)
		}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}

// extractString pulls a string frontmatter value by key with a default.
func extractString(fm map[string]interface{}, key, defaultVal string) string {
	v, ok := fm[key]
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return defaultVal
}

// inlineTagRe finds #hashtag patterns in body text.
var inlineTagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

func extractInlineTags(body string) []string {
	matches := inlineTagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]bool)
	var tags []string
	for _, m := range matches {
		tag := strings.TrimSpace(m[1])
		lower := strings.ToLower(tag)
		if !seen[lower] {
			seen[lower] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

// mergeTags combines two tag slices, deduplicating case-insensitively.
func mergeTags(a, b []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, tag := range append(a, b...) {
		lower := strings.ToLower(tag)
		if !seen[lower] {
			seen[lower] = true
			result = append(result, tag)
		}
	}
	return result
}

// buildContent assembles the stored content. The title heading is only
// prepended when the body doesn't already open with one.
func buildContent(title, body string) string {
	body = strings.TrimSpace(body)

	var parts []string
	if title != "" && !strings.HasPrefix(body, "# ") {
		parts = append(parts, "# "+title)
	}
	if body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}
