package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/PoOnesNerfect/oofs/internal/config"
	"github.com/PoOnesNerfect/oofs/internal/inject"
)

const version = "0.1.0"

var (
	// Global flags
	verbose    bool
	configPath string

	// Generate flags
	writeInPlace bool
	captureMode  string
	profileName  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "oofgen",
	Short: "oofgen - error-context instrumentation for Go source",
	Long: `oofgen rewrites Go source so that every fallible call boundary wraps
its error in a context frame: the call that failed, where, and with
which argument values. The runtime package renders the accumulated
frames into a structured, nested report and answers tag queries for
retry/fallback policy.

Instrumentation is a source-level rewrite: run oofgen over a package,
commit or generate the output, and build as usual.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// generateCmd rewrites the given files or directories
var generateCmd = &cobra.Command{
	Use:   "generate [files or directories]",
	Short: "Instrument Go source files",
	Long: `Instruments every eligible fallible-propagation site in the given
files, or in every .go file under the given directories. Without -w the
rewritten source is printed to stdout; with -w files are rewritten in
place. Files matching the config's exclude patterns are skipped.

Example:
  oofgen generate -w ./internal/store ./cmd/api/main.go`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the oofgen version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("oofgen %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")

	generateCmd.Flags().BoolVarP(&writeInPlace, "write", "w", false, "Rewrite files in place instead of printing to stdout")
	generateCmd.Flags().StringVar(&captureMode, "capture", "", "Capture mode override: auto, always, or disabled")
	generateCmd.Flags().StringVar(&profileName, "profile", "", "Profile override: development or release")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if captureMode != "" {
		cfg.Capture = captureMode
	}
	if profileName != "" {
		cfg.Profile = profileName
	}
	capCfg, err := cfg.CaptureConfig()
	if err != nil {
		return err
	}

	rw := inject.New(logger, inject.Config{
		Capture:       capCfg,
		RuntimeImport: cfg.RuntimeImport,
	})

	files, err := collectFiles(args, cfg)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no Go files to instrument under %s", strings.Join(args, ", "))
	}

	total := inject.Stats{}
	for _, path := range files {
		stats, err := generateFile(rw, path)
		if err != nil {
			return err
		}
		total.Functions += stats.Functions
		total.Sites += stats.Sites
		total.Ensures += stats.Ensures
	}

	logger.Info("generation complete",
		zap.Int("files", len(files)),
		zap.Int("functions", total.Functions),
		zap.Int("sites", total.Sites),
		zap.Int("ensures", total.Ensures))
	return nil
}

func generateFile(rw *inject.Rewriter, path string) (inject.Stats, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return inject.Stats{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out, stats, err := rw.RewriteSource(path, src)
	if err != nil {
		return inject.Stats{}, err
	}

	if !writeInPlace {
		if _, err := os.Stdout.Write(out); err != nil {
			return inject.Stats{}, err
		}
		return stats, nil
	}

	if !stats.Changed() {
		logger.Debug("unchanged", zap.String("file", path))
		return stats, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return inject.Stats{}, err
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return inject.Stats{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("instrumented",
		zap.String("file", path),
		zap.Int("sites", stats.Sites),
		zap.Int("ensures", stats.Ensures))
	return stats, nil
}

// collectFiles expands the path arguments into the list of Go files to
// rewrite, applying the config's exclude patterns and skipping vendor
// and hidden directories.
func collectFiles(args []string, cfg *config.Config) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !cfg.Excluded(arg) {
				files = append(files, arg)
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != arg && (name == "vendor" || name == "testdata" ||
					strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || cfg.Excluded(path) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
