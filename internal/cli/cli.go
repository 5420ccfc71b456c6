// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/adapters/dirstore"
	"github.com/mcdonaldj/stashd/internal/adapters/osfs"
	"github.com/mcdonaldj/stashd/internal/adapters/s3store"
	"github.com/mcdonaldj/stashd/internal/adapters/targz"
	"github.com/mcdonaldj/stashd/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/stashd/internal/archive"
	"github.com/mcdonaldj/stashd/internal/config"
	"github.com/mcdonaldj/stashd/internal/launcher"
	"github.com/mcdonaldj/stashd/internal/paths"
	"github.com/mcdonaldj/stashd/internal/ports"
	"github.com/mcdonaldj/stashd/internal/restore"
	"github.com/mcdonaldj/stashd/internal/retention"
	"github.com/mcdonaldj/stashd/internal/syncer"
)

// SyncService provides the cycle and loop operations for the CLI.
type SyncService interface {
	RunCycle(ctx context.Context) error
	Bootstrap(ctx context.Context)
	Run(ctx context.Context)
}

// RestoreService provides restore and listing operations for the CLI.
type RestoreService interface {
	RestoreTarget(ctx context.Context, target, destDir string) (string, error)
	ListSorted(ctx context.Context) ([]string, string, error)
}

// Services bundles the wired components for one loaded configuration.
type Services struct {
	Sync    SyncService
	Restore RestoreService
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// LoadConfig loads configuration (defaults to config.Load).
	LoadConfig func(path string) (*config.Config, error)

	// BuildServices wires the components for a config (defaults to the
	// production adapters). Tests inject mocks here.
	BuildServices func(ctx context.Context, cfg *config.Config) (*Services, error)

	// RunApp executes the supervised application command (defaults to
	// launcher.Run).
	RunApp func(ctx context.Context, command string) error

	// Flags parsed out of Args by Run.
	configPath string
	verbose    bool
	noRestore  bool
	noSync     bool
	dryRun     bool

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:           os.Stdout,
		Err:           os.Stderr,
		Version:       version,
		Args:          os.Args,
		Exit:          os.Exit,
		LoadConfig:    config.Load,
		BuildServices: buildServices,
		RunApp:        launcher.Run,
		green:         color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:        color.New(color.FgYellow).SprintFunc(),
		cyan:          color.New(color.FgCyan).SprintFunc(),
		gray:          color.New(color.FgHiBlack).SprintFunc(),
		red:           color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	c := &CLI{
		Out:        out,
		Err:        errOut,
		Version:    "test",
		Args:       args,
		Exit:       func(code int) {},
		LoadConfig: config.Load,
		RunApp: func(ctx context.Context, command string) error {
			return nil
		},
		green:  noColor,
		yellow: noColor,
		cyan:   noColor,
		gray:   noColor,
		red:    noColor,
	}
	return c
}

// buildServices wires the production adapters for a loaded config.
func buildServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	store, err := newStore(ctx, cfg.DatasetID)
	if err != nil {
		return nil, err
	}

	archiver, err := newArchiver(cfg.ArchiveExtension)
	if err != nil {
		return nil, err
	}

	collector := paths.NewCollector(osfs.New())
	builder := archive.NewBuilder(archiver, clockwork.NewRealClock(), os.TempDir(), cfg.ArchivePrefix, cfg.ArchiveExtension)
	keeper := retention.NewManager(store, cfg.ArchivePrefix, cfg.ArchiveExtension)
	restorer := restore.NewService(store, archiver, osfs.New(), cfg.ArchivePrefix, cfg.ArchiveExtension)

	sync, err := syncer.New(cfg, collector, builder, store, keeper, restorer, clockwork.NewRealClock())
	if err != nil {
		return nil, err
	}

	return &Services{Sync: sync, Restore: restorer}, nil
}

// newStore picks the store adapter from the dataset identifier: local paths
// and file:// URLs get the directory store, anything else is treated as an
// S3 bucket or bucket/prefix.
func newStore(ctx context.Context, datasetID string) (ports.ArchiveStore, error) {
	if strings.HasPrefix(datasetID, "file://") ||
		strings.HasPrefix(datasetID, "/") ||
		strings.HasPrefix(datasetID, "./") ||
		strings.HasPrefix(datasetID, "~") {
		return dirstore.New(datasetID), nil
	}
	return s3store.New(ctx, datasetID)
}

// newArchiver picks the packer adapter from the archive extension.
func newArchiver(ext string) (ports.Archiver, error) {
	switch strings.ToLower(ext) {
	case "tar.gz", "tgz":
		return targz.New(), nil
	case "zip":
		return ziparchiver.New(), nil
	default:
		return nil, fmt.Errorf("unsupported archive extension: %s", ext)
	}
}

// parseFlags strips the recognized flags out of Args and returns the
// remaining positional arguments (excluding the program name).
func (c *CLI) parseFlags() []string {
	var positional []string
	args := c.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			i++
			c.configPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			c.configPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--verbose":
			c.verbose = true
		case arg == "--no-restore":
			c.noRestore = true
		case arg == "--no-sync":
			c.noSync = true
		case arg == "--dry-run":
			c.dryRun = true
		default:
			positional = append(positional, arg)
		}
	}
	return positional
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run(ctx context.Context) {
	args := c.parseFlags()

	if c.verbose || os.Getenv("STASHD_VERBOSE") == "true" {
		log.SetLevel(log.DebugLevel)
	}

	if len(args) == 0 {
		c.PrintUsage()
		return
	}

	switch args[0] {
	case "archive":
		c.RunArchive(ctx)
	case "restore":
		target := restore.Latest
		if len(args) > 1 {
			target = args[1]
		}
		c.RunRestore(ctx, target)
	case "list":
		c.ListArchives(ctx)
	case "daemon":
		c.RunDaemon(ctx)
	case "start":
		c.RunStart(ctx)
	case "status":
		c.ShowStatus(ctx)
	case "init":
		c.InitConfig()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "stashd v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", args[0])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `stashd - Periodic Backup/Restore Daemon

Usage:
  stashd archive                  Run one archive-upload-prune cycle now
  stashd restore [name|latest]    Restore an archive (default: latest)
  stashd list                     List remote archives, newest first
  stashd daemon                   Run the repeating sync loop forever
  stashd start                    Restore, start the loop, run the app command
  stashd status                   Show configuration and remote state
  stashd init                     Create default config file
  stashd version, -v              Show version
  stashd help, -h                 Show this help

Flags:
  --config <path>                 Config file (default ~/.stashd/config.yaml)
  --verbose                       Enable debug logging
  --no-restore                    Skip the startup restore
  --no-sync                       Skip the background sync loop
  --dry-run                       Build archives without uploading

Config: ~/.stashd/config.yaml, overridable via STASHD_* env vars`)
}

// loadAndValidate loads config, applies flag overrides, and validates the
// persistence options. Returns nil after printing the error when invalid.
func (c *CLI) loadAndValidate(requireValid bool) *config.Config {
	cfg, err := c.LoadConfig(c.configPath)
	if err != nil {
		fmt.Fprintf(c.Err, "Error loading config: %v\n", err)
		c.Exit(1)
		return nil
	}

	if c.dryRun {
		cfg.DryRun = true
	}
	if c.noRestore {
		cfg.EnableAutoRestore = false
	}
	if c.noSync {
		cfg.EnableAutoSync = false
	}

	if requireValid {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(c.Err, "Invalid configuration: %v\n", err)
			c.Exit(1)
			return nil
		}
	}

	return cfg
}

// services builds the wired components for cfg.
func (c *CLI) services(ctx context.Context, cfg *config.Config) *Services {
	build := c.BuildServices
	if build == nil {
		build = buildServices
	}
	svcs, err := build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return nil
	}
	return svcs
}

// RunArchive runs one cycle now.
func (c *CLI) RunArchive(ctx context.Context) {
	cfg := c.loadAndValidate(true)
	if cfg == nil {
		return
	}
	svcs := c.services(ctx, cfg)
	if svcs == nil {
		return
	}

	if err := svcs.Sync.RunCycle(ctx); err != nil {
		fmt.Fprintf(c.Err, "Archive cycle failed: %v\n", err)
		c.Exit(1)
		return
	}

	if cfg.DryRun {
		fmt.Fprintf(c.Out, "%s Dry run complete, archive kept locally\n", c.yellow("-"))
		return
	}
	fmt.Fprintf(c.Out, "%s Archive cycle complete\n", c.green("*"))
}

// RunRestore restores the given target into the configured restore path.
func (c *CLI) RunRestore(ctx context.Context, target string) {
	cfg := c.loadAndValidate(true)
	if cfg == nil {
		return
	}
	svcs := c.services(ctx, cfg)
	if svcs == nil {
		return
	}

	name, err := svcs.Restore.RestoreTarget(ctx, target, cfg.RestorePath)
	if errors.Is(err, ports.ErrNoArchives) {
		fmt.Fprintf(c.Out, "%s No archives to restore yet\n", c.gray("-"))
		return
	}
	if err != nil {
		fmt.Fprintf(c.Err, "Restore failed: %v\n", err)
		c.Exit(1)
		return
	}

	fmt.Fprintf(c.Out, "%s Restored %s into %s\n", c.green("*"), c.cyan(name), cfg.RestorePath)
}

// ListArchives prints remote archives, one per line, newest first, plus a
// machine-parsable LATEST_BACKUP marker line for automation.
func (c *CLI) ListArchives(ctx context.Context) {
	cfg := c.loadAndValidate(true)
	if cfg == nil {
		return
	}
	svcs := c.services(ctx, cfg)
	if svcs == nil {
		return
	}

	names, latest, err := svcs.Restore.ListSorted(ctx)
	if err != nil {
		fmt.Fprintf(c.Err, "Error: %v\n", err)
		c.Exit(1)
		return
	}

	for _, name := range names {
		fmt.Fprintln(c.Out, name)
	}
	fmt.Fprintf(c.Out, "LATEST_BACKUP:%s\n", latest)
}

// RunDaemon runs the startup restore (when enabled) and then the repeating
// sync loop until the context is cancelled.
func (c *CLI) RunDaemon(ctx context.Context) {
	cfg := c.loadAndValidate(true)
	if cfg == nil {
		return
	}
	svcs := c.services(ctx, cfg)
	if svcs == nil {
		return
	}

	svcs.Sync.Bootstrap(ctx)
	svcs.Sync.Run(ctx)
}

// RunStart performs the optional auto-restore, starts the sync loop in the
// background, and hands off to the supervised application command. A config
// that fails validation disables persistence but still starts the app.
func (c *CLI) RunStart(ctx context.Context) {
	cfg := c.loadAndValidate(false)
	if cfg == nil {
		return
	}

	persist := true
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("persistence disabled: invalid configuration")
		persist = false
	}

	if persist {
		svcs := c.services(ctx, cfg)
		if svcs == nil {
			return
		}

		svcs.Sync.Bootstrap(ctx)

		if cfg.EnableAutoSync {
			go svcs.Sync.Run(ctx)
		} else {
			log.Info("auto-sync disabled")
		}
	}

	if cfg.AppCommand == "" {
		if !persist {
			fmt.Fprintln(c.Err, "Nothing to run: no appCommand and persistence is disabled")
			c.Exit(1)
			return
		}
		// No app to supervise; block on the loop instead.
		<-ctx.Done()
		return
	}

	if err := c.RunApp(ctx, cfg.AppCommand); err != nil {
		fmt.Fprintf(c.Err, "App exited with error: %v\n", err)
		c.Exit(1)
	}
}

// ShowStatus shows the resolved configuration and remote state.
func (c *CLI) ShowStatus(ctx context.Context) {
	cfg := c.loadAndValidate(false)
	if cfg == nil {
		return
	}

	fmt.Fprintln(c.Out, "stashd status:")
	fmt.Fprintf(c.Out, "  Dataset:   %s\n", cfg.DatasetID)
	fmt.Fprintf(c.Out, "  Paths:     %s\n", cfg.ArchivePaths)
	fmt.Fprintf(c.Out, "  Restore:   %s\n", cfg.RestorePath)
	fmt.Fprintf(c.Out, "  Interval:  %ds\n", cfg.SyncIntervalSeconds)
	fmt.Fprintf(c.Out, "  Retention: %d archives\n", cfg.MaxArchives)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(c.Out, "  Remote:    %s\n", c.red(fmt.Sprintf("unavailable (%v)", err)))
		return
	}

	svcs := c.services(ctx, cfg)
	if svcs == nil {
		return
	}

	names, latest, err := svcs.Restore.ListSorted(ctx)
	if err != nil {
		fmt.Fprintf(c.Out, "  Remote:    %s\n", c.red(fmt.Sprintf("unreachable (%v)", err)))
		return
	}

	fmt.Fprintf(c.Out, "  Archives:  %d\n", len(names))
	if latest == "" {
		fmt.Fprintf(c.Out, "  Latest:    %s\n", c.gray("none"))
	} else {
		fmt.Fprintf(c.Out, "  Latest:    %s\n", c.cyan(latest))
	}
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	cfg := config.DefaultConfig()
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(c.Err, "Error saving config: %v\n", err)
		c.Exit(1)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", config.ConfigPath())
}
