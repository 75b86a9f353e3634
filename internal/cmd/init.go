package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adamancini/hoist/internal/config"
	"github.com/adamancini/hoist/internal/fsutil"
	"github.com/adamancini/hoist/internal/interactive"
	"github.com/adamancini/hoist/internal/templates"
	"github.com/adamancini/hoist/internal/types"
)

// initOptions are the inputs to hoist init. Empty fields come from the
// template, or from the user when prompting.
type initOptions struct {
	Template    string
	Environment string
	ManifestURL string
	Output      string
	Force       bool
	// Prompt asks for the environment and manifest URL not given as flags.
	Prompt bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a hoist config file",
		Long: `Create a hoist config file from a built-in template.

Templates:
  development  - Local development, manual checks only
  production   - Automatic web and native updates
  full         - Every option, with push channel and metrics

Without --template, the template follows --environment. On a terminal, init
asks for the environment and manifest URL unless they are given as flags.
The result is validated before it is written.

Examples:
  hoist init
  hoist init --environment production --manifest-url https://updates.example.com/manifest.json
  hoist init --template full --config ~/hoist.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Prompt = interactive.IsTerminal()
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Template, "template", "t", "", "Template name")
	cmd.Flags().StringVarP(&opts.Environment, "environment", "e", "", "Environment (production, staging, development)")
	cmd.Flags().StringVar(&opts.ManifestURL, "manifest-url", "", "Web bundle manifest URL")
	cmd.Flags().StringVar(&opts.Output, "config", "", "Output path for the config file")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing config file")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.GetDescription(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("environment", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, env := range types.AllEnvironments() {
			completions = append(completions, env.String())
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit renders a template with the chosen environment and manifest URL,
// validates it and writes it to the output path.
func runInit(stdin io.Reader, stdout io.Writer, opts initOptions) error {
	reader := bufio.NewReader(stdin)

	path := opts.Output
	if path == "" {
		path = getDefaultConfigPath()
	}
	path = expandHomePath(path)

	if _, err := os.Stat(path); err == nil && !opts.Force {
		if !opts.Prompt {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
		answer, err := ask(reader, stdout, fmt.Sprintf("Config file %s exists. Overwrite? [y/N]", path), "n")
		if err != nil {
			return err
		}
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	env := types.Environment("")
	if opts.Environment != "" {
		parsed, err := types.ParseEnvironment(opts.Environment)
		if err != nil {
			return err
		}
		env = parsed
	}

	name := opts.Template
	if name == "" {
		name = templateFor(env)
	}
	tmpl, err := templates.GetExpanded(name)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	defaults, err := tmpl.Config()
	if err != nil {
		return err
	}

	manifestURL := opts.ManifestURL
	if opts.Prompt {
		if env == "" {
			answer, err := ask(reader, stdout, "Environment", defaults.Environment.String())
			if err != nil {
				return err
			}
			if env, err = types.ParseEnvironment(answer); err != nil {
				return err
			}
		}
		if manifestURL == "" {
			if manifestURL, err = ask(reader, stdout, "Manifest URL", defaults.Web.ManifestURL); err != nil {
				return err
			}
		}
	}

	content, err := renderConfig(tmpl.Content, env, manifestURL)
	if err != nil {
		return err
	}
	cfg, err := config.Parse(content)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	if err := fsutil.AtomicWrite(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "Created %s from the %s template\n", path, name)
	_, _ = fmt.Fprintf(stdout, "  Environment: %s\n", cfg.Environment)
	if cfg.Web.ManifestURL != "" {
		_, _ = fmt.Fprintf(stdout, "  Manifest:    %s\n", cfg.Web.ManifestURL)
	}
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  hoist check   # stage the published bundle")
	_, _ = fmt.Fprintln(stdout, "  hoist run     # start the client")
	return nil
}

// templateFor picks the built-in template for env.
func templateFor(env types.Environment) string {
	if env == types.EnvironmentDevelopment {
		return "development"
	}
	return "production"
}

// ask prints label with its default and returns the trimmed answer, or def
// when the answer is empty.
func ask(reader *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		_, _ = fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		_, _ = fmt.Fprintf(out, "%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// renderConfig sets environment and web.manifest_url in template content.
// Empty values leave the template's own. Comments are preserved.
func renderConfig(content []byte, env types.Environment, manifestURL string) ([]byte, error) {
	if env == "" && manifestURL == "" {
		return content, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("template is not a YAML mapping")
	}
	root := doc.Content[0]
	if env != "" {
		setScalar(root, env.String(), "environment")
	}
	if manifestURL != "" {
		setScalar(root, manifestURL, "web", "manifest_url")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return buf.Bytes(), nil
}

// setScalar sets the string at keys under mapping, creating missing keys.
func setScalar(mapping *yaml.Node, value string, keys ...string) {
	node := mapping
	for i, key := range keys {
		var child *yaml.Node
		for j := 0; j+1 < len(node.Content); j += 2 {
			if node.Content[j].Value == key {
				child = node.Content[j+1]
				break
			}
		}
		last := i == len(keys)-1
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			if last {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}
		if last {
			child.Kind = yaml.ScalarNode
			child.Tag = "!!str"
			child.Style = 0
			child.Value = value
			child.Content = nil
			return
		}
		if child.Kind != yaml.MappingNode {
			*child = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		node = child
	}
}

// getDefaultConfigPath returns the first location FindConfig searches.
func getDefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hoist", "hoist.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "hoist.yaml"
	}
	return filepath.Join(home, ".config", "hoist", "hoist.yaml")
}

// expandHomePath expands a leading ~/ to the user's home directory.
func expandHomePath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
