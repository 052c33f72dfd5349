package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/infrastructure/config"
	"github.com/nerrad567/keymux/internal/infrastructure/database"
	"github.com/nerrad567/keymux/internal/input"
)

// defaultConfigPath is used when neither --config nor KEYMUX_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

const defaultHistoryLimit = 20

// options holds the parsed command line.
type options struct {
	configPath string
	debug      bool

	devices []string
	watch   bool
	keymap  string
	assets  string

	limit int
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "keymux",
		Short: "Keyboard remapping daemon",
		Long: `keymux grabs keyboards exclusively and re-emits their events through a
virtual keyboard after applying a layered keymap.

Running keymux without a subcommand is the same as "keymux run".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, opts)
		},
	}
	root.SetVersionTemplate("keymux {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default $KEYMUX_CONFIG or "+defaultConfigPath+")")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	addRunFlags(root, opts)

	root.AddCommand(
		newRunCommand(opts),
		newDevicesCommand(opts),
		newHistoryCommand(opts),
		newVersionCommand(),
	)
	return root
}

func addRunFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringArrayVar(&opts.devices, "device", nil, "device node to capture, repeatable (default: all keyboards)")
	f.BoolVar(&opts.watch, "watch", false, "capture devices plugged in after startup")
	f.StringVar(&opts.keymap, "keymap", "", "keymap file")
	f.StringVar(&opts.assets, "assets", "", "sound assets directory (enables sounds)")
}

func newRunCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture devices and remap them until interrupted",
		Example: `  keymux run --keymap ~/.config/keymux/keymap.yaml
  keymux run --device /dev/input/event3 --device /dev/input/event7
  keymux run --watch --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func runCommand(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, opts, cmd); err != nil {
		return err
	}
	return runDaemon(cmd.Context(), cfg)
}

func newDevicesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List input devices and whether keymux would capture them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			paths, err := candidatePaths(cfg.Devices)
			if err != nil {
				return err
			}
			infos := make([]input.Info, 0, len(paths))
			for _, p := range paths {
				infos = append(infos, input.Describe(p, nil, cfg.Output.Name))
			}
			return printDevices(cmd.OutOrStdout(), infos)
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent device capture sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Database.Path); err != nil {
				return fmt.Errorf("no session history at %s: %w", cfg.Database.Path, err)
			}

			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // read-only command

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			sessions, err := device.NewSQLiteSessionRepository(db.DB).Recent(cmd.Context(), opts.limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", defaultHistoryLimit, "number of sessions to show")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keymux %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// loadConfig resolves the config path: explicit flag, then KEYMUX_CONFIG,
// then the default path, which may be absent.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("KEYMUX_CONFIG")
	}
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadOptional(defaultConfigPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// applyFlags overlays command line flags on cfg and revalidates it.
func applyFlags(cfg *config.Config, opts *options, cmd *cobra.Command) error {
	if len(opts.devices) > 0 {
		cfg.Devices.Paths = opts.devices
	}
	if cmd.Flags().Changed("watch") {
		cfg.Devices.Watch = opts.watch
	}
	if opts.keymap != "" {
		cfg.Keymap.File = opts.keymap
	}
	if opts.assets != "" {
		cfg.Sound.Enabled = true
		cfg.Sound.AssetsDir = opts.assets
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}
	return nil
}

func candidatePaths(cfg config.DevicesConfig) ([]device.Path, error) {
	if len(cfg.Paths) > 0 {
		return devicePaths(cfg.Paths), nil
	}
	root := cfg.RootDir
	if root == "" {
		root = device.DefaultRoot
	}
	return device.Enumerate(root)
}

func devicePaths(in []string) []device.Path {
	out := make([]device.Path, len(in))
	for i, p := range in {
		out[i] = device.Path(p)
	}
	return out
}

func printDevices(w io.Writer, infos []input.Info) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no input devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tCAPTURE\tREASON")
	for _, info := range infos {
		capture := "yes"
		if !info.Eligible {
			capture = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Path, orDash(info.Name), capture, orDash(info.Reason))
	}
	return tw.Flush()
}

func printSessions(w io.Writer, sessions []device.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "no sessions recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tPATH\tNAME\tSTATUS\tDURATION\tERROR")
	for _, s := range sessions {
		duration := "-"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.StartedAt.Local().Format(time.DateTime),
			s.Path,
			orDash(s.Name),
			s.Status,
			duration,
			orDash(s.Error),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
