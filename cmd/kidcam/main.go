// Package main is the CLI entry point for kidcam.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/kidcam/internal/config"
	"github.com/eliteGoblin/kidcam/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kidcam",
	Short: "Kid camera appliance",
	Long: `kidcam runs a two-camera photo and video appliance for children.

A four-position switch picks the camera and capture mode, a rotary encoder
scrolls through the gallery and a single button takes pictures or records
short videos. Tapping an NFC card switches to that card's album.`,
	Version:      Version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the appliance",
	Long: `Opens the cameras, controls and display and runs until interrupted.
Captures are written under <base-dir>/<identity>/.`,
	RunE: runRun,
}

var albumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "List albums",
	Long:  `Shows every identity album with its file count and last capture.`,
	RunE:  runAlbums,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy an album to another directory",
	Long:  `Copies one identity album, e.g. onto a mounted USB stick. Existing files are overwritten.`,
	RunE:  runExport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check appliance status",
	Long:  `Shows whether the appliance is running and how much space is left for captures.`,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	debug      bool
	jsonOutput bool

	baseDir          string
	fullscreen       bool
	inputSource      string
	displayDriver    string
	cameraDriver     string
	recordingTimeout time.Duration

	exportIdentity string
	exportTo       string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/kidcam/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level to the console")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Media directory holding the albums")

	runCmd.Flags().BoolVar(&fullscreen, "fullscreen", false, "Run the window fullscreen")
	runCmd.Flags().StringVar(&inputSource, "input", "", "Input source (hardware/keyboard)")
	runCmd.Flags().StringVar(&displayDriver, "display", "", "Display driver (ebiten/headless)")
	runCmd.Flags().StringVar(&cameraDriver, "camera", "", "Camera driver (gocv/mock)")
	runCmd.Flags().DurationVar(&recordingTimeout, "recording-timeout", 0, "Maximum video length")

	exportCmd.Flags().StringVar(&exportIdentity, "identity", "", "Album to export")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Destination directory")
	_ = exportCmd.MarkFlagRequired("identity")
	_ = exportCmd.MarkFlagRequired("to")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(albumsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, fmt.Errorf("failed to locate config: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-dir") {
		cfg.Media.BaseDir = baseDir
	}
	if flags.Changed("fullscreen") {
		cfg.Display.Fullscreen = fullscreen
	}
	if flags.Changed("input") {
		cfg.Input.Source = inputSource
	}
	if flags.Changed("display") {
		cfg.Display.Driver = displayDriver
	}
	if flags.Changed("camera") {
		cfg.Camera.Driver = cameraDriver
	}
	if flags.Changed("recording-timeout") {
		cfg.Recording.Timeout = recordingTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func createLogger(cfg *config.Config) *zap.Logger {
	if debug {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	logPath := infra.NewAlbumFS().ExpandHome(cfg.Log.Path)
	_ = os.MkdirAll(filepath.Dir(logPath), 0755)

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{logPath, "stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runAlbums(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fsys := infra.NewAlbumFS()
	root := fsys.ExpandHome(cfg.Media.BaseDir)

	identities, err := infra.ListAlbums(root)
	if err != nil {
		return fmt.Errorf("failed to list albums: %w", err)
	}

	var store *infra.StateStore
	if cfg.State.Enabled {
		stateDir := fsys.ExpandHome(cfg.State.Dir)
		if provider := infra.NewFileKeyProvider(stateDir); provider.KeyExists() {
			if key, err := provider.GetKey(); err == nil {
				if store, err = infra.NewStateStore(stateDir, key); err != nil {
					fmt.Printf("Warning: capture journal unavailable: %v\n", err)
				}
			}
		}
	}
	if store != nil {
		defer store.Close()
	}

	fmt.Println("\n=== kidcam Albums ===")
	fmt.Printf("Base directory: %s\n", root)
	if store != nil {
		if started, err := store.GetMeta(metaLastStarted); err == nil && started != "" {
			fmt.Printf("Last started: %s\n", started)
		}
	}

	if len(identities) == 0 {
		fmt.Println("\nNo albums yet.")
	}
	for _, identity := range identities {
		files, err := fsys.ListRegularFiles(filepath.Join(root, identity))
		if err != nil {
			fmt.Printf("\n[%s] unreadable: %v\n", identity, err)
			continue
		}
		fmt.Printf("\n[%s] %d files\n", identity, len(files))

		if store == nil {
			continue
		}
		if n, err := store.CountCaptures(identity); err == nil {
			fmt.Printf("  Captures recorded: %d\n", n)
		}
		if last, err := store.LastCapture(identity); err == nil && last != nil {
			fmt.Printf("  Last capture: %s (%s, %s ago)\n",
				filepath.Base(last.Path), last.Kind, time.Since(last.CapturedAt).Round(time.Second))
		}
	}

	fmt.Println("\n=====================")
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fsys := infra.NewAlbumFS()

	exporter := infra.NewExporter(fsys.ExpandHome(cfg.Media.BaseDir))
	count, err := exporter.Export(exportIdentity, fsys.ExpandHome(exportTo))
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Exported %d files from %s to %s\n", count, exportIdentity, filepath.Join(exportTo, exportIdentity))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fsys := infra.NewAlbumFS()
	root := fsys.ExpandHome(cfg.Media.BaseDir)

	fmt.Println("\n=== kidcam Status ===")

	lock := infra.NewInstanceLock(fsys.ExpandHome(cfg.State.Dir))
	holder, err := lock.Holder()
	switch {
	case err != nil:
		fmt.Printf("Status: UNKNOWN (%v)\n", err)
	case holder == nil:
		fmt.Println("Status: NOT RUNNING")
	default:
		started := time.Unix(holder.StartedAt, 0)
		fmt.Printf("Status: RUNNING (pid %d, version %s)\n", holder.PID, holder.Version)
		fmt.Printf("Uptime: %s\n", time.Since(started).Round(time.Second))
	}

	fmt.Printf("\nBase directory: %s\n", root)
	usage, err := infra.NewDiskMonitor().Usage(root)
	if err != nil {
		fmt.Printf("Disk: unavailable (%v)\n", err)
	} else {
		fmt.Printf("Disk: %d MB free of %d MB (%.1f%% used)\n", usage.FreeMB, usage.TotalMB, usage.UsedPercent)
		if usage.FreeMB < cfg.Storage.MinFreeMB {
			fmt.Printf("Warning: below the %d MB capture threshold, captures are refused\n", cfg.Storage.MinFreeMB)
		}
	}

	fmt.Println("=====================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("kidcam %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
