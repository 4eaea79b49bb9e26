package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Artifact names inside a project directory.
const (
	PlanYAML       = "book_plan.yaml"
	PlanJSON       = "book_plan.json"
	RequestJSON    = "request.json"
	StoryContext   = "story_context.json"
	StorySummary   = "story_summary.txt"
	ImageLog       = "image_log.txt"
	PagesJSON      = "pages.json"
	ContentsJSON   = "contents.json"
	ImagesJSON     = "images.json"
	TrendsJSON     = "trends.json"
	StyleJSON      = "style_profile.json"
	MetadataFile   = "metadata.md"
	ImagesDir      = "images"
	ChaptersDir    = "chapters"
	CheckpointsDir = "checkpoints"
)

// ChapterFile is the markdown file holding one accepted unit.
func ChapterFile(index int) string {
	return filepath.Join(ChaptersDir, fmt.Sprintf("chapter_%02d.md", index+1))
}

// ImageFile is the file an illustration for the given placeholder id is stored in.
func ImageFile(placeholderID, ext string) string {
	if ext == "" {
		ext = "png"
	}
	name := slug.Make(placeholderID)
	name = strings.ReplaceAll(name, "-", "_")
	if name == "" {
		name = "image"
	}
	return filepath.Join(ImagesDir, name+"."+strings.TrimPrefix(ext, "."))
}

// FallbackImageFile is where a synthesized stand-in image is written.
func FallbackImageFile(placeholderID string) string {
	return ImageFile(placeholderID+"_fallback", "png")
}

// DocumentStem derives the rendered document's base name from the title,
// e.g. "The Red Door" -> "the_red_door_book".
func DocumentStem(title string) string {
	s := strings.ReplaceAll(slug.Make(title), "-", "_")
	if s == "" {
		s = "untitled"
	}
	return s + "_book"
}

// TranslationSummaryFile names the per-language translation summary.
func TranslationSummaryFile(lang string) string {
	return fmt.Sprintf("translation_summary_%s.txt", strings.ReplaceAll(slug.Make(lang), "-", "_"))
}

// ProjectMetadata is a short human-readable header written next to the artifacts.
func ProjectMetadata(projectID, idea string, started time.Time) []byte {
	return []byte(fmt.Sprintf(`# Project Metadata

**Project ID**: %s
**Date**: %s
**Idea**: %s
`, projectID, started.Format("2006-01-02 15:04:05"), idea))
}
