package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemSecurity(t *testing.T) {
	tempDir := t.TempDir()

	outsideFile := filepath.Join(filepath.Dir(tempDir), "outside.txt")
	if err := os.WriteFile(outsideFile, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(outsideFile)

	fs := NewFileSystem(tempDir)
	ctx := context.Background()

	t.Run("Save prevents directory traversal", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			want bool // true if should succeed
		}{
			{"normal path", "test.txt", true},
			{"subdirectory", "images/test.png", true},
			{"parent traversal", "../test.txt", false},
			{"complex traversal", "subdir/../../test.txt", false},
			{"absolute path", "/etc/passwd", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := fs.Save(ctx, tt.path, []byte("test"))
				if tt.want && err != nil {
					t.Errorf("expected success, got error: %v", err)
				}
				if !tt.want && err == nil {
					t.Errorf("expected error for path %q, got none", tt.path)
				}
			})
		}
	})

	t.Run("Load prevents directory traversal", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(tempDir, "valid.txt"), []byte("valid"), 0o644); err != nil {
			t.Fatal(err)
		}

		tests := []struct {
			name string
			path string
			want bool
		}{
			{"normal path", "valid.txt", true},
			{"parent traversal", "../outside.txt", false},
			{"absolute path", outsideFile, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fs.Load(ctx, tt.path)
				if tt.want && err != nil {
					t.Errorf("expected success, got error: %v", err)
				}
				if !tt.want && err == nil {
					t.Errorf("expected error for path %q, got none", tt.path)
				}
			})
		}
	})

	t.Run("List prevents directory traversal", func(t *testing.T) {
		tests := []struct {
			name    string
			pattern string
			want    bool
		}{
			{"normal pattern", "*.txt", true},
			{"subdirectory pattern", "images/*.png", true},
			{"parent traversal", "../*", false},
			{"absolute pattern", "/etc/*", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fs.List(ctx, tt.pattern)
				if tt.want && err != nil {
					t.Errorf("expected success, got error: %v", err)
				}
				if !tt.want && err == nil {
					t.Errorf("expected error for pattern %q, got none", tt.pattern)
				}
			})
		}
	})
}

func TestSanitizePath(t *testing.T) {
	tempDir := t.TempDir()
	fs := NewFileSystem(tempDir)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple file", "file.txt", false},
		{"nested file", "dir/file.txt", false},
		{"dot file", ".hidden", false},
		{"parent directory", "../file.txt", true},
		{"sneaky parent", "dir/../../../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"empty path", "", false},
		{"double dot", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.sanitizePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("sanitizePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
				return
			}
			if err == nil && !strings.HasPrefix(got, tempDir) {
				t.Errorf("sanitizePath(%q) = %q, not under base directory %q", tt.path, got, tempDir)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := NewFileSystem(t.TempDir())
	ctx := context.Background()

	if err := fs.Save(ctx, "chapters/chapter_01.md", []byte("Intro.")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !fs.Exists(ctx, "chapters/chapter_01.md") {
		t.Fatal("Exists() = false after Save")
	}
	if fs.Exists(ctx, "chapters/chapter_01.md.tmp") {
		t.Error("temporary file left behind")
	}

	data, err := fs.Load(ctx, "chapters/chapter_01.md")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != "Intro." {
		t.Errorf("Load() = %q, want %q", data, "Intro.")
	}

	if err := fs.Delete(ctx, "chapters/chapter_01.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if fs.Exists(ctx, "chapters/chapter_01.md") {
		t.Error("Exists() = true after Delete")
	}
}

func TestPathAndSub(t *testing.T) {
	base := t.TempDir()
	fs := NewFileSystem(base)

	p, err := fs.Path("images/cover.png")
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if p != filepath.Join(base, "images", "cover.png") {
		t.Errorf("Path() = %q", p)
	}
	if st, err := os.Stat(filepath.Join(base, "images")); err != nil || !st.IsDir() {
		t.Errorf("Path() did not create parent directory: %v", err)
	}

	sub, err := fs.Sub("book_20240101_120000_abcdef")
	if err != nil {
		t.Fatalf("Sub() error = %v", err)
	}
	if sub.BaseDir() != filepath.Join(base, "book_20240101_120000_abcdef") {
		t.Errorf("Sub().BaseDir() = %q", sub.BaseDir())
	}
	if _, err := fs.Sub("../escape"); err == nil {
		t.Error("Sub() accepted a traversal path")
	}
}

func TestArtifactNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"chapter file", ChapterFile(0), filepath.Join("chapters", "chapter_01.md")},
		{"image file", ImageFile("chapter1_image2", "png"), filepath.Join("images", "chapter1_image2.png")},
		{"cover", ImageFile("cover", ""), filepath.Join("images", "cover.png")},
		{"fallback", FallbackImageFile("page_3_image1"), filepath.Join("images", "page_3_image1_fallback.png")},
		{"document stem", DocumentStem("The Magical Forest Adventure"), "the_magical_forest_adventure_book"},
		{"empty title", DocumentStem("   "), "untitled_book"},
		{"translation", TranslationSummaryFile("French"), "translation_summary_french.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
