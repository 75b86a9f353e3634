// Package templates provides embedded configuration templates for hoist init.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/adamancini/hoist/internal/config"
)

//go:embed *.yaml
var templatesFS embed.FS

// Template represents a configuration template with metadata.
type Template struct {
	Name        string
	Description string
	Content     []byte
}

// Available templates with their descriptions.
var templateDescriptions = map[string]string{
	"development": "Local development, manual checks only",
	"production":  "Automatic web and native updates",
	"full":        "Every option, with push channel and metrics",
}

// List returns all available template names sorted alphabetically.
func List() []string {
	entries, err := templatesFS.ReadDir(".")
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	filename := name + ".yaml"
	content, err := templatesFS.ReadFile(filename)
	if err != nil {
		if pathErr, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("template '%s' not found: %w", name, pathErr)
		}
		return nil, fmt.Errorf("failed to read template '%s': %w", name, err)
	}

	return &Template{
		Name:        name,
		Description: templateDescriptions[name],
		Content:     content,
	}, nil
}

// GetDescription returns the description for a template.
func GetDescription(name string) string {
	if desc, ok := templateDescriptions[name]; ok {
		return desc
	}
	return "Custom template"
}

// ExpandEnvVars replaces ${VAR} and ${VAR:-default} patterns in content
// the same way config files are expanded when loaded.
func ExpandEnvVars(content []byte) []byte {
	return config.ExpandEnv(content)
}

// Config parses the template as a hoist configuration.
func (t *Template) Config() (*config.Config, error) {
	cfg, err := config.Parse(t.Content)
	if err != nil {
		return nil, fmt.Errorf("template '%s': %w", t.Name, err)
	}
	return cfg, nil
}

// GetExpanded returns a template with environment variables expanded.
func GetExpanded(name string) (*Template, error) {
	tmpl, err := Get(name)
	if err != nil {
		return nil, err
	}

	tmpl.Content = ExpandEnvVars(tmpl.Content)
	return tmpl, nil
}
