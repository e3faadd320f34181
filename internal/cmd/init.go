package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/autodeploy/internal/config"
	"github.com/adamancini/autodeploy/internal/templates"
	"github.com/adamancini/autodeploy/internal/transport"
)

func newInitCmd() *cobra.Command {
	var templateName string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an agent config file from a template",
		Long: `Create an agent config file from a built-in or custom template.

Available templates:
  fileshare   - Registry on a mounted file share, real-time monitoring
  unattended  - No prompts, rotated log file, metrics endpoint
  webserver   - Registry served over HTTPS with credentials

Examples:
  autodeploy init                                   # Interactive mode
  autodeploy init --template=fileshare              # Direct template selection
  autodeploy init --template=https://...            # Custom template URL
  autodeploy init --config /etc/autodeploy.yaml     # Custom output location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), templateName, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name or URL")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	// Register completion for template flag
	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.GetDescription(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit executes the init workflow.
func runInit(stdin io.Reader, stdout, stderr io.Writer, templateName, outputPath string, force bool) error {
	reader := bufio.NewReader(stdin)

	// Determine output path
	defaultPath := getDefaultConfigPath()
	askLocation := outputPath == ""
	if outputPath == "" {
		outputPath = defaultPath
	}
	outputPath = expandHomePath(outputPath)

	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Config already exists at %s\n", outputPath)
		_, _ = fmt.Fprintf(stdout, "Overwrite? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	var content []byte
	var selectedTemplate string

	if templateName == "" {
		selected, err := selectTemplateInteractive(reader, stdout)
		if err != nil {
			return err
		}
		templateName = selected
	}

	if strings.HasPrefix(templateName, "http://") || strings.HasPrefix(templateName, "https://") {
		var err error
		content, err = fetchRemoteTemplate(templateName)
		if err != nil {
			return fmt.Errorf("failed to fetch template: %w", err)
		}
		selectedTemplate = "custom"
	} else {
		tmpl, err := templates.Get(templateName)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		content = tmpl.Content
		selectedTemplate = templateName
	}

	// Validate the template content before writing
	if err := validateTemplateContent(content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	if selectedTemplate != "custom" && !quiet {
		_, _ = fmt.Fprintf(stdout, "\nPreview of '%s' template:\n", selectedTemplate)
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
		lines := strings.Split(string(content), "\n")
		maxLines := 20
		if len(lines) <= maxLines {
			_, _ = fmt.Fprintln(stdout, string(content))
		} else {
			for i := 0; i < maxLines; i++ {
				_, _ = fmt.Fprintln(stdout, lines[i])
			}
			_, _ = fmt.Fprintf(stdout, "... (%d more lines)\n", len(lines)-maxLines)
		}
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
	}

	if askLocation && !quiet {
		_, _ = fmt.Fprintf(stdout, "\nWhere should I create the config? [%s]: ", outputPath)
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if answer = strings.TrimSpace(answer); answer != "" {
			outputPath = expandHomePath(answer)
		}
	}

	parentDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parentDir, err)
	}

	// Credentials may end up in the file
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", outputPath)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  1. Point registry at your deployment registry")
	_, _ = fmt.Fprintln(stdout, "  2. Run 'autodeploy check' to preview the first pass")
	_, _ = fmt.Fprintln(stdout, "  3. Run 'autodeploy run' from the host's startup hook")

	return nil
}

// selectTemplateInteractive shows an interactive menu for template selection.
func selectTemplateInteractive(reader *bufio.Reader, stdout io.Writer) (string, error) {
	templateList := templates.List()

	_, _ = fmt.Fprintln(stdout, "\nSelect a config template:")
	for i, name := range templateList {
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, name, templates.GetDescription(name))
	}
	_, _ = fmt.Fprintf(stdout, "  %d. %-12s - Provide custom template URL\n", len(templateList)+1, "custom")

	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", len(templateList)+1)

	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	answer = strings.TrimSpace(answer)

	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(templateList)+1 {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}

	if num == len(templateList)+1 {
		_, _ = fmt.Fprint(stdout, "Enter template URL: ")
		url, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read URL: %w", err)
		}
		return strings.TrimSpace(url), nil
	}

	return templateList[num-1], nil
}

// fetchRemoteTemplate downloads a template from a URL.
func fetchRemoteTemplate(url string) ([]byte, error) {
	opts := transport.DefaultOptions()
	opts.Timeout = 30 * time.Second
	opts.MaxBytes = 1 << 20

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	return transport.NewHTTPDownloader(opts).DownloadBytes(ctx, url)
}

// validateTemplateContent validates that the content is a loadable agent config.
func validateTemplateContent(content []byte) error {
	tmpFile, err := os.CreateTemp("", "autodeploy-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	_, err = config.Load(tmpName)
	return err
}

// getDefaultConfigPath returns the default config location.
func getDefaultConfigPath() string {
	path, err := config.DefaultPath()
	if err != nil {
		return "autodeploy.yaml"
	}
	return path
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
