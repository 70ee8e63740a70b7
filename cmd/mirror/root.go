package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/mirror/pkg/mirror/config"
	"github.com/jamesainslie/mirror/pkg/mirror/hasher"
	"github.com/jamesainslie/mirror/pkg/mirror/logging"
	"github.com/jamesainslie/mirror/pkg/mirror/output"
	"github.com/jamesainslie/mirror/pkg/mirror/pipeline"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "mirror [flags] SRC [DST]",
		Short: "Mirror a directory tree with content-hash verification",
		Long: `Mirror copies a directory tree with rsync and guarantees byte-for-byte
integrity through a content-hash manifest: every file is hashed at the
source, the tree is copied, and every manifest entry is re-hashed at the
destination.

Steps can run individually with --step, and --manifest - pipes the
manifest over stdio for chaining or compression.

Examples:
  mirror /data /mnt/backup             # hash, copy, verify
  mirror --step make-manifest /data    # write /data/BLAKE3SUMS only
  mirror --step verify /data /mnt/backup
  mirror --algo sha256 --manifest - /data | gzip > sums.gz

Exit codes: 0 success, 1 verification problems, 2 usage or I/O errors.`,
		Args:          cobra.MaximumNArgs(2),
		RunE:          runMirror,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/mirror/config.yaml)")
	rootCmd.Flags().IntP("jobs", "j", 0, "parallel hashing jobs (default: CPU count)")
	rootCmd.Flags().Int("hash-threads", 0, "BLAKE3 internal threads per file (0=auto)")
	rootCmd.Flags().String("algo", config.DefaultAlgo, "hash algorithm: auto (prefer blake3), blake3, or sha256")
	rootCmd.Flags().Bool("prefer-external-b3", false, "prefer external b3sum if available")
	rootCmd.Flags().String("manifest", "", `manifest path; "-" for stdout/stdin (default: SRC or DST default name)`)
	rootCmd.Flags().BoolP("dry-run", "d", false, "pass --dry-run to rsync, no filesystem mutation")
	rootCmd.Flags().String("step", config.DefaultStep, "run a single step: all, make-manifest, copy, or verify")
	rootCmd.Flags().BoolP("quiet", "q", false, "suppress banner and progress output")
	rootCmd.Flags().BoolP("verbose", "v", false, "debug logging to the console")

	_ = viper.BindPFlag("jobs", rootCmd.Flags().Lookup("jobs"))
	_ = viper.BindPFlag("hash_threads", rootCmd.Flags().Lookup("hash-threads"))
	_ = viper.BindPFlag("algo", rootCmd.Flags().Lookup("algo"))
	_ = viper.BindPFlag("prefer_external_b3", rootCmd.Flags().Lookup("prefer-external-b3"))
	_ = viper.BindPFlag("manifest", rootCmd.Flags().Lookup("manifest"))
	_ = viper.BindPFlag("dry_run", rootCmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("step", rootCmd.Flags().Lookup("step"))
	_ = viper.BindPFlag("quiet", rootCmd.Flags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.Flags().Lookup("verbose"))

	viper.SetEnvPrefix("MIRROR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// applyConfig seeds the flag-level viper with the loaded configuration,
// so precedence is flags, then MIRROR_ environment variables, then the
// config file, then built-in defaults.
func applyConfig(cfg *config.Config) {
	viper.SetDefault("jobs", cfg.Jobs)
	viper.SetDefault("hash_threads", cfg.HashThreads)
	viper.SetDefault("algo", cfg.Algo)
	viper.SetDefault("prefer_external_b3", cfg.PreferExternalB3)
	viper.SetDefault("exclude", cfg.Exclude)
	viper.SetDefault("exclude_prefixes", cfg.ExcludePrefixes)
	viper.SetDefault("logging.level", cfg.Logging.Level)
	viper.SetDefault("logging.path", cfg.Logging.Path)
}

// Execute runs the root command. Verification failures are reported by
// the run summary; everything else is reported here exactly once.
func Execute() error {
	err := rootCmd.Execute()
	var ve *pipeline.VerifyError
	if err != nil && !errors.As(err, &ve) {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
	}
	return err
}

// buildOptions assembles pipeline options from viper state and the
// positional SRC/DST arguments.
func buildOptions(args []string) (pipeline.Options, error) {
	mode, err := hasher.ParseMode(viper.GetString("algo"))
	if err != nil {
		return pipeline.Options{}, &pipeline.UsageError{Msg: err.Error()}
	}

	step, err := pipeline.ParseStep(viper.GetString("step"))
	if err != nil {
		return pipeline.Options{}, err
	}

	opts := pipeline.Options{
		Step:             step,
		Manifest:         viper.GetString("manifest"),
		Mode:             mode,
		PreferExternalB3: viper.GetBool("prefer_external_b3"),
		Jobs:             viper.GetInt("jobs"),
		HashThreads:      viper.GetInt("hash_threads"),
		DryRun:           viper.GetBool("dry_run"),
		Exclude:          viper.GetStringSlice("exclude"),
		ExcludePrefixes:  viper.GetStringSlice("exclude_prefixes"),
	}
	if len(args) > 0 {
		opts.Src = args[0]
	}
	if len(args) > 1 {
		opts.Dst = args[1]
	}
	return opts, nil
}

// runMirror is the main command handler.
func runMirror(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyConfig(cfg)

	quiet := viper.GetBool("quiet")

	logCfg := logging.Config{
		Level:   viper.GetString("logging.level"),
		Path:    viper.GetString("logging.path"),
		Console: viper.GetBool("verbose"),
	}
	if viper.GetBool("verbose") {
		logCfg.Level = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return err
	}
	defer func() { _ = logging.Close() }()

	opts, err := buildOptions(args)
	if err != nil {
		return err
	}

	if !quiet {
		opts.OnProgress = output.NewProgress(os.Stderr).Update
		fmt.Fprint(os.Stderr, output.Banner(string(opts.Step), opts.DryRun, string(opts.Mode)))
	}

	// An interrupt during any phase aborts the batch; partial manifests
	// or partially copied trees require a fresh run.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := pipeline.Run(ctx, opts)

	if !quiet && res != nil {
		fmt.Fprint(os.Stderr, output.Summary(res, runErr))
	}
	return runErr
}
