package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/fzft/go-probed-set/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	HistFileEnv     = "PROBEDSET_HISTFILE"
	HistFileDefault = ".probedset_history"
)

var (
	logLevel       string
	logDev         bool
	maxAllocations int
	maxMemory      int64
	historyFile    string
)

// runner is satisfied by every SetCli instantiation.
type runner interface {
	Run(in io.Reader, out io.Writer) error
	RunInteractive(out io.Writer) error
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "probed-set [int|double]",
	Short: "Drive a fixed-capacity probed hash set from a command script.",
	Long: `probed-set reads commands from standard input and applies them to a
fixed-capacity open-addressing hash set of int or double keys. Each command
that carries an expected value prints "Okay" when the table agrees with it,
and a description of the mismatch otherwise.

When standard input is a terminal, commands are read with line editing and
history. Type "help" for the list of commands.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := log.InitLogger(logLevel, logDev); err != nil {
			return errors.Wrap(err, "initializing logger")
		}
		defer log.Logger.Sync()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Starting Test Run")

		keyType := "int"
		if len(args) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(),
				"Expecting a command-line argument of either 'int' or 'double', but got none; using 'int' by default.")
		} else {
			keyType = args[0]
		}

		cfg := &SetCliCfg{
			MaxAllocations: maxAllocations,
			MaxMemory:      maxMemory,
			HistoryFile:    historyFile,
		}
		if cfg.HistoryFile == "" {
			cfg.HistoryFile = getDotfilePath(HistFileEnv, HistFileDefault)
		}

		var cli runner
		switch keyType {
		case "int":
			cli = NewSetCli[int](cfg, strconv.Atoi)
		case "double":
			cli = NewSetCli[float64](cfg, parseDouble)
		default:
			return errors.Newf("unknown key type %q, expecting 'int' or 'double'", keyType)
		}

		if err := runCli(cli, cmd.InOrStdin(), out); err != nil {
			return err
		}
		fmt.Fprintln(out, "Finishing Test Run")
		return nil
	},
}

func runCli(cli runner, in io.Reader, out io.Writer) error {
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return cli.RunInteractive(out)
	}
	return cli.Run(in, out)
}

// getDotfilePath returns the file named by envOverride, or dotFilename in
// the home directory. "/dev/null" disables the file.
func getDotfilePath(envOverride, dotFilename string) string {
	path := os.Getenv(envOverride)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, dotFilename)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logDev, "log-dev", false, "human readable, colored log output")
	rootCmd.PersistentFlags().IntVar(&maxAllocations, "max-allocations", 0, "maximum number of tracked allocations (0 for the default of 8192)")
	rootCmd.PersistentFlags().Int64Var(&maxMemory, "max-memory", 0, "maximum bytes the tracked tables may hold (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&historyFile, "history", "", "history file for interactive mode (defaults to $"+HistFileEnv+" or ~/"+HistFileDefault+")")
}
