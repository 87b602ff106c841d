package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/teranos/semcluster/am"
	"github.com/teranos/semcluster/display"
	"github.com/teranos/semcluster/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage semcluster configuration",
	Long: `am - Manage semcluster configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (SEMCLUSTER_* prefix, e.g. SEMCLUSTER_SERVER_PORT)
3. Project config (./am.toml, searched up from the working directory)
4. User config (~/.semcluster/am.toml)
5. System config (/etc/semcluster/am.toml)
6. Default values

Examples:
  semcluster am show                     # Show current configuration
  semcluster am show --format json       # Show configuration in JSON format
  semcluster am get clustering.min_cluster_size
  semcluster am validate                 # Validate current configuration
  semcluster am init                     # Write defaults to ~/.semcluster/am.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g., server.port, embeddings.default_model)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate current configuration",
	Long: `Validate the effective configuration. With a file argument, that file is
decoded strictly and keys the schema does not know are reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	RunE:  runAmInit,
}

var (
	configFormat string
	initPath     string
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().StringVar(&initPath, "path", "", "Target file (default: ~/.semcluster/am.toml)")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file (old one is kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := rawConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

// rawConfig loads without validation so broken files can still be shown
func rawConfig() (*am.Config, error) {
	var cfg *am.Config
	var err error
	if ConfigPath != "" {
		cfg, err = am.LoadFromFile(ConfigPath)
	} else {
		cfg, err = am.Load()
	}
	return cfg, errors.Wrap(err, "failed to load config")
}

func writeConfig(w io.Writer, cfg *am.Config, format string) error {
	switch format {
	case display.FormatJSON:
		return display.WriteJSON(w, cfg)

	case display.FormatYAML:
		return display.WriteYAML(w, cfg, "semcluster configuration")

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# semcluster configuration\n%s", data)

	default:
		return display.UnsupportedFormat(format, "toml", display.FormatJSON, display.FormatYAML)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, err := rawConfig(); err != nil {
		return err
	}

	if !am.GetViper().IsSet(key) {
		return errors.WithHint(
			errors.Mark(errors.NewInvalidInputError("configuration key %q not found", key), errors.ErrNotFound),
			"run 'semcluster am show' to list every key")
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		cfg, unknown, err := am.DecodeTOMLFile(args[0])
		if err != nil {
			return err
		}
		for _, key := range unknown {
			fmt.Fprintf(out, "! unknown key %s\n", key)
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "configuration validation failed")
		}
		if len(unknown) > 0 {
			return errors.NewInvalidInputError("%s has %d unknown key(s)", args[0], len(unknown))
		}
		fmt.Fprintf(out, "✓ %s is valid\n", args[0])
		return nil
	}

	cfg, err := rawConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(out, "✓ Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		dir := am.UserConfigDir()
		if dir == "" {
			return errors.WithHint(errors.New("cannot resolve home directory"), "pass --path")
		}
		path = filepath.Join(dir, "am.toml")
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.WithHintf(
			errors.Newf("%s already exists", path),
			"pass --force to overwrite; the current file is kept as %s.back1", path)
	}

	if err := am.WriteConfig(path, am.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default configuration to %s\n", path)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/semcluster/am.toml")
	fmt.Fprintln(out, "  3. [USER]     ~/.semcluster/am.toml")
	fmt.Fprintln(out, "  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintln(out, "  5. [ENV]      SEMCLUSTER_* environment variables")
	fmt.Fprintln(out)

	type fileGroup struct {
		source   am.ConfigSource
		path     string
		settings []am.SettingInfo
	}

	// Defaults and env vars have no path; group them by source name
	groups := make(map[string]*fileGroup)
	for _, setting := range intro.Settings {
		key := setting.SourcePath
		if key == "" {
			key = string(setting.Source)
		}
		g, ok := groups[key]
		if !ok {
			g = &fileGroup{source: setting.Source, path: setting.SourcePath}
			groups[key] = g
		}
		g.settings = append(g.settings, setting)
	}

	sourceOrder := []am.ConfigSource{
		am.SourceDefault,
		am.SourceSystem,
		am.SourceUser,
		am.SourceProject,
		am.SourceEnvironment,
	}

	fmt.Fprintln(out, "Active configuration:")
	for _, source := range sourceOrder {
		var level []*fileGroup
		for _, g := range groups {
			if g.source == source {
				level = append(level, g)
			}
		}
		sort.Slice(level, func(i, j int) bool { return level[i].path < level[j].path })

		for _, g := range level {
			switch {
			case g.path != "":
				fmt.Fprintf(out, "\n%s: %d settings from %s\n", source, len(g.settings), g.path)
			case source == am.SourceEnvironment:
				fmt.Fprintf(out, "\n%s: %d settings from environment variables\n", source, len(g.settings))
			default:
				fmt.Fprintf(out, "\n%s: %d settings\n", source, len(g.settings))
			}
			for _, setting := range g.settings {
				fmt.Fprintf(out, "  %s = %s\n", setting.Key, display.Truncate(fmt.Sprintf("%v", setting.Value), 50))
			}
		}
	}
	return nil
}
