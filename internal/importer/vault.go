package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/pkg/types"
)

// Result summarizes a completed vault import.
type Result struct {
	FilesFound     int           `json:"files_found"`
	FilesImported  int           `json:"files_imported"`
	FilesSkipped   int           `json:"files_skipped"`
	FilesFailed    int           `json:"files_failed"`
	Duplicates     int           `json:"duplicates"`
	EntitiesLinked int           `json:"entities_linked"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration_ms"`
}

// VaultImporter walks an Obsidian vault (or any Markdown directory) and
// stores its notes through the engine, so imports get the same dedup, tag,
// and embedding treatment as any other memory.
type VaultImporter struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// NewVaultImporter creates an importer backed by the given engine.
func NewVaultImporter(eng *engine.Engine, logger zerolog.Logger) *VaultImporter {
	return &VaultImporter{engine: eng, log: logger}
}

// Import walks dirPath and stores every Markdown note found. Wiki-link
// targets are resolved to entities and linked to the note. A file that fails
// to parse or store is reported in Result.Errors; the walk keeps going.
func (imp *VaultImporter) Import(ctx context.Context, dirPath string) (*Result, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %q: %w", dirPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", dirPath)
	}

	start := time.Now()
	result := &Result{}

	files, err := collectMarkdownFiles(dirPath)
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", dirPath, err)
	}
	result.FilesFound = len(files)

	for _, absPath := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "import cancelled")
			break
		}

		rel, _ := filepath.Rel(dirPath, absPath)

		data, err := os.ReadFile(absPath)
		if err != nil {
			result.FilesSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read error: %v", rel, err))
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			result.FilesSkipped++
			continue
		}

		parsed, err := ParseMarkdownFile(data, absPath, rel)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: parse error: %v", rel, err))
			continue
		}

		if err := imp.storeNote(ctx, parsed, result); err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: store error: %v", rel, err))
			continue
		}
		result.FilesImported++
	}

	result.Duration = time.Since(start)
	imp.log.Info().Int("files", result.FilesImported).Int("duplicates", result.Duplicates).
		Int("entities", result.EntitiesLinked).Dur("took", result.Duration).Msg("vault import finished")
	return result, nil
}

// storeNote stores one parsed note, resolving its wiki-link targets to
// entities first so the note links to them.
func (imp *VaultImporter) storeNote(ctx context.Context, pf *ParsedFile, result *Result) error {
	var entityIDs []string
	for _, wl := range pf.WikiLinks {
		entity, _, err := imp.engine.FindOrCreateEntity(ctx, engine.EntityInput{
			EntityType: types.EntityTypeOther,
			Name:       wl.Target,
		})
		if err != nil {
			return fmt.Errorf("resolving link %q: %w", wl.Target, err)
		}
		entityIDs = append(entityIDs, entity.ID)
	}
	result.EntitiesLinked += len(entityIDs)

	meta := map[string]interface{}{
		"import_source": "markdown",
		"import_path":   pf.RelativePath,
	}
	if !pf.Timestamp.IsZero() {
		meta["authored_at"] = pf.Timestamp.UTC().Format(time.RFC3339)
	}
	for k, v := range pf.Frontmatter {
		switch k {
		case "tags", "date", "created", "created_at", "updated_at", "title":
			// Already handled.
		default:
			meta["fm_"+k] = v
		}
	}

	stored, err := imp.engine.StoreNote(ctx, engine.NoteInput{
		Content:   pf.Content,
		Tags:      pf.Tags,
		EntityIDs: entityIDs,
		Metadata:  meta,
	})
	if err != nil {
		return err
	}
	if !stored.Created {
		result.Duplicates++
	}
	return nil
}

// collectMarkdownFiles walks dirPath and returns all .md / .markdown files.
// Hidden directories (.obsidian, .git, .trash) are skipped.
func collectMarkdownFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == ".md" || ext == ".markdown" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
