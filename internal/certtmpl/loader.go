// Package certtmpl loads certificate templates from a directory of YAML
// files and fills them with learner/formation/trainer display strings.
// The result is a local file the blob uploader can push; the visual
// layout of the final document lives with the template author.
package certtmpl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Template describes one certificate layout. Body supports the
// placeholders {{learner}}, {{formation}}, {{trainer}} and {{date}}.
type Template struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Title       string `yaml:"title" json:"title"`
	Body        string `yaml:"body" json:"body"`
	Footer      string `yaml:"footer" json:"footer,omitempty"`
}

// Loader manages loading and caching of certificate templates
type Loader struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLoader creates a new template loader
func NewLoader() *Loader {
	return &Loader{
		templates: make(map[string]*Template),
	}
}

// LoadFromDir loads all YAML templates from a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading certificate templates", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load certificate template", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("certificate templates loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single template from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if tmpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if tmpl.Body == "" {
		return fmt.Errorf("template body is required")
	}

	l.mu.Lock()
	l.templates[tmpl.Name] = &tmpl
	l.mu.Unlock()

	slog.Debug("certificate template loaded", "name", tmpl.Name, "file", path)
	return nil
}

// Get returns a template by name, nil if absent
func (l *Loader) Get(name string) *Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.templates[name]
}

// List returns all loaded templates
func (l *Loader) List() []*Template {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Template, 0, len(l.templates))
	for _, t := range l.templates {
		out = append(out, t)
	}
	return out
}

// Renderer fills a named template and writes the result to a temp file
type Renderer struct {
	loader       *Loader
	templateName string
}

// NewRenderer creates a renderer bound to one template name
func NewRenderer(loader *Loader, templateName string) *Renderer {
	return &Renderer{loader: loader, templateName: templateName}
}

// Render produces a local certificate file and returns its path.
// The caller owns the file and may remove it after upload.
func (r *Renderer) Render(ctx context.Context, learnerName, formationTitle, trainerName, issuedDate string) (string, error) {
	tmpl := r.loader.Get(r.templateName)
	if tmpl == nil {
		return "", fmt.Errorf("certificate template not found: %s", r.templateName)
	}

	replacer := strings.NewReplacer(
		"{{learner}}", learnerName,
		"{{formation}}", formationTitle,
		"{{trainer}}", trainerName,
		"{{date}}", issuedDate,
	)

	var b strings.Builder
	if tmpl.Title != "" {
		b.WriteString(replacer.Replace(tmpl.Title))
		b.WriteString("\n\n")
	}
	b.WriteString(replacer.Replace(tmpl.Body))
	if tmpl.Footer != "" {
		b.WriteString("\n\n")
		b.WriteString(replacer.Replace(tmpl.Footer))
	}

	f, err := os.CreateTemp("", "certificate-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create certificate file: %w", err)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write certificate file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close certificate file: %w", err)
	}

	return f.Name(), nil
}
