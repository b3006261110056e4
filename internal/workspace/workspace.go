// Package workspace collects diagram source files from a directory tree.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/diagfix/internal/diagnostic"
)

// File is one diagram source found under the scan root.
type File struct {
	Path string // relative to the scan root
	Abs  string
	// Language is inferred from the extension and only used as a notation
	// hint; content detection still decides.
	Language diagnostic.Language
	// Markdown files carry diagrams in fenced code blocks.
	Markdown bool
}

// maxFileSize bounds the sources worth sending through a fix session.
const maxFileSize = 4 << 20

// extensions maps diagram file extensions to their notation.
var extensions = map[string]diagnostic.Language{
	".bpmn":     diagnostic.LanguageBPMN,
	".mmd":      diagnostic.LanguageMermaid,
	".mermaid":  diagnostic.LanguageMermaid,
	".puml":     diagnostic.LanguagePlantUML,
	".plantuml": diagnostic.LanguagePlantUML,
	".pu":       diagnostic.LanguagePlantUML,
	".iuml":     diagnostic.LanguagePlantUML,
}

var markdownExtensions = map[string]bool{".md": true, ".markdown": true}

// defaultIgnore is the default set of directory names to skip.
// Matching is against directory base names only.
var defaultIgnore = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
	".build":       true,
	"dist":         true,
	"build":        true,
}

// LanguageOf returns the notation implied by path's extension, or
// LanguageUnknown.
func LanguageOf(path string) diagnostic.Language {
	if l, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	return diagnostic.LanguageUnknown
}

// IsMarkdown reports whether path names a Markdown document.
func IsMarkdown(path string) bool {
	return markdownExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scan walks root and returns every diagram and Markdown file, sorted by path.
// ignore supplements the default ignore list with directory base names.
// Files larger than 4 MiB are skipped.
func Scan(root string, ignore []string) ([]File, error) {
	extraIgnore := make(map[string]bool, len(ignore))
	for _, p := range ignore {
		extraIgnore[p] = true
	}

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (defaultIgnore[d.Name()] || extraIgnore[d.Name()]) {
				return fs.SkipDir
			}
			return nil
		}

		lang := LanguageOf(d.Name())
		md := IsMarkdown(d.Name())
		if lang == diagnostic.LanguageUnknown && !md {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxFileSize {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return absErr
		}
		files = append(files, File{Path: rel, Abs: abs, Language: lang, Markdown: md})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read loads the source of f.
func (f File) Read() (string, error) {
	b, err := os.ReadFile(f.Abs)
	if err != nil {
		return "", fmt.Errorf("workspace: read %s: %w", f.Path, err)
	}
	return string(b), nil
}

// Write replaces the source of f, keeping its permissions.
func (f File) Write(source string) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(f.Abs); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(f.Abs, []byte(source), mode); err != nil {
		return fmt.Errorf("workspace: write %s: %w", f.Path, err)
	}
	return nil
}
