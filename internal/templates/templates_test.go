package templates

import (
	"os"
	"strings"
	"testing"
)

func TestList(t *testing.T) {
	names := List()

	// Should have at least 3 built-in templates
	if len(names) < 3 {
		t.Errorf("expected at least 3 templates, got %d", len(names))
	}

	// Check for expected templates
	expected := []string{"development", "full", "production"}
	for _, exp := range expected {
		found := false
		for _, name := range names {
			if name == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected template '%s' not found in list", exp)
		}
	}

	// Should be sorted
	for i := 1; i < len(names); i++ {
		if names[i] < names[i-1] {
			t.Errorf("templates not sorted: %v", names)
			break
		}
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"development", false},
		{"production", false},
		{"full", false},
		{"nonexistent", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Get(tt.name)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Get(%s) expected error, got nil", tt.name)
				}
				return
			}

			if err != nil {
				t.Errorf("Get(%s) unexpected error: %v", tt.name, err)
				return
			}

			if tmpl == nil {
				t.Errorf("Get(%s) returned nil template", tt.name)
				return
			}

			if tmpl.Name != tt.name {
				t.Errorf("Get(%s) name = %s, want %s", tt.name, tmpl.Name, tt.name)
			}

			if len(tmpl.Content) == 0 {
				t.Errorf("Get(%s) returned empty content", tt.name)
			}

			content := string(tmpl.Content)
			if !strings.Contains(content, "environment:") {
				t.Errorf("Get(%s) content missing 'environment:' field", tt.name)
			}
		})
	}
}

func TestGetDescription(t *testing.T) {
	tests := []struct {
		name     string
		wantDesc string
	}{
		{"development", "Local development, manual checks only"},
		{"production", "Automatic web and native updates"},
		{"full", "Every option, with push channel and metrics"},
		{"unknown", "Custom template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := GetDescription(tt.name)
			if desc != tt.wantDesc {
				t.Errorf("GetDescription(%s) = %q, want %q", tt.name, desc, tt.wantDesc)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test_value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple variable",
			input: "path: ${TEST_VAR}/subdir",
			want:  "path: test_value/subdir",
		},
		{
			name:  "variable with default, var set",
			input: "path: ${TEST_VAR:-default}/subdir",
			want:  "path: test_value/subdir",
		},
		{
			name:  "variable with default, var unset",
			input: "path: ${UNSET_VAR:-default_value}/subdir",
			want:  "path: default_value/subdir",
		},
		{
			name:  "unset variable without default",
			input: "path: ${UNSET_VAR}/subdir",
			want:  "path: /subdir",
		},
		{
			name:  "multiple variables",
			input: "path: ${TEST_VAR}/${TEST_VAR}",
			want:  "path: test_value/test_value",
		},
		{
			name:  "HOME variable",
			input: "path: ${HOME}/projects",
			want:  "path: " + os.Getenv("HOME") + "/projects",
		},
		{
			name:  "no variables",
			input: "path: /some/static/path",
			want:  "path: /some/static/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(ExpandEnvVars([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGetExpanded(t *testing.T) {
	t.Setenv("HOIST_MANIFEST_URL", "")

	// The full template uses ${HOME} and ${HOIST_MANIFEST_URL:-...}
	tmpl, err := GetExpanded("full")
	if err != nil {
		t.Fatalf("GetExpanded(full) error: %v", err)
	}

	content := string(tmpl.Content)
	home := os.Getenv("HOME")

	// Should have expanded ${HOME}
	if strings.Contains(content, "${HOME}") {
		t.Errorf("GetExpanded(full) did not expand ${HOME}")
	}

	// Should contain the expanded home path
	if !strings.Contains(content, home) {
		t.Errorf("GetExpanded(full) content does not contain expanded HOME path")
	}

	if !strings.Contains(content, "manifest_url: https://updates.example.com/manifest.json") {
		t.Errorf("GetExpanded(full) did not apply the manifest_url default")
	}
}

func TestTemplateContentValidity(t *testing.T) {
	for _, name := range List() {
		t.Run(name, func(t *testing.T) {
			tmpl, err := Get(name)
			if err != nil {
				t.Fatalf("Get(%s) error: %v", name, err)
			}

			content := string(tmpl.Content)

			// Check required fields
			requiredFields := []string{
				"environment:",
				"web:",
				"manifest_url:",
			}

			for _, field := range requiredFields {
				if !strings.Contains(content, field) {
					t.Errorf("template %s missing required field: %s", name, field)
				}
			}
		})
	}
}

func TestTemplatesAreValidConfigs(t *testing.T) {
	t.Setenv("HOIST_MANIFEST_URL", "")
	t.Setenv("HOIST_EVENTS_URL", "")

	for _, name := range List() {
		t.Run(name, func(t *testing.T) {
			tmpl, err := GetExpanded(name)
			if err != nil {
				t.Fatalf("GetExpanded(%s) error: %v", name, err)
			}
			cfg, err := tmpl.Config()
			if err != nil {
				t.Fatalf("template %s is not a valid config: %v", name, err)
			}
			if cfg.Web.ManifestURL == "" {
				t.Errorf("template %s has no manifest_url", name)
			}
		})
	}
}
