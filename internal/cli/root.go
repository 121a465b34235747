// Package cli is the fitarchive command line. Every invocation migrates and
// opens the archive, runs exactly one command and syncs the archive on the
// way out, also when the command fails or is interrupted.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sadopc/fitarchive/internal/archive"
	"github.com/sadopc/fitarchive/internal/config"
	"github.com/sadopc/fitarchive/internal/export"
	"github.com/sadopc/fitarchive/internal/fitfile"
	"github.com/sadopc/fitarchive/internal/ingest"
	"github.com/sadopc/fitarchive/internal/logger"
	"github.com/sadopc/fitarchive/internal/migrate"
	"github.com/sadopc/fitarchive/internal/store"
	"github.com/sadopc/fitarchive/internal/tui"
)

// app carries what the commands share: configuration, output streams and
// the collaborators tests replace.
type app struct {
	version     string
	v           *viper.Viper
	out         io.Writer
	decoder     fitfile.Decoder
	interactive bool
	now         func() time.Time
	confirm     func(title string) (bool, error)
	browse      func(ctx context.Context, src tui.Source) error
}

func newApp(version string, out io.Writer) *app {
	return &app{
		version:     version,
		v:           config.New("."),
		out:         out,
		decoder:     fitfile.FIT{},
		interactive: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
		now:         time.Now,
		confirm:     confirmPrompt,
		browse:      tui.Run,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(newApp(version, os.Stdout))
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "fitarchive",
		Short:         "Archive and analyse FIT files from sport devices",
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.String("dbdir", "", "data directory of the archive (default ~/.fitarchive)")
	flags.Bool("debug", false, "development logging with stack traces")
	flags.BoolP("verbose", "v", false, "log debug messages")
	_ = a.v.BindPFlag(config.KeyDataDir, flags.Lookup("dbdir"))
	_ = a.v.BindPFlag(config.KeyDebug, flags.Lookup("debug"))
	_ = a.v.BindPFlag(config.KeyVerbose, flags.Lookup("verbose"))

	run := func(parse func(args []string) (Command, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := parse(args)
			if err != nil {
				return err
			}
			return a.execute(cmd.Context(), c)
		}
	}

	checkCmd := &cobra.Command{
		Use:   "check [files|refs]",
		Short: "Check stored files, references or external FIT files",
		Long: `Check decodes stored files again and verifies the archive engine.

Without arguments the whole archive is checked and then compacted.`,
		RunE: run(func(args []string) (Command, error) {
			return CheckCmd{Targets: args}, nil
		}),
	}

	reportCmd := func(p Period, short string) *cobra.Command {
		return &cobra.Command{
			Use:   string(p) + " [YYYY-MM-DD]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: run(func(args []string) (Command, error) {
				d, err := parseDate(args, a.now())
				if err != nil {
					return nil, err
				}
				return ReportCmd{Period: p, Date: d}, nil
			}),
		}
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete activities",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(args []string) (Command, error) {
			return DeleteCmd{Ref: args[0]}, nil
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import [files|dirs]",
		Short: "Import FIT files",
		Long: `Import activity and monitoring FIT files. Directories are scanned for
*.fit files. A single directory is remembered and used when no argument is
given.`,
	}
	force := importCmd.Flags().Bool("force", false, "import files again even if they were imported or deleted before")
	name := importCmd.Flags().String("name", "", "name of the imported activity (default the file name)")
	importCmd.RunE = run(func(args []string) (Command, error) {
		return ImportCmd{Paths: args, Force: *force, Name: *name}, nil
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all activities, newest first",
		Args:  cobra.NoArgs,
		RunE: run(func([]string) (Command, error) {
			return ListCmd{}, nil
		}),
	}

	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Show personal records",
		Args:  cobra.NoArgs,
		RunE: run(func([]string) (Command, error) {
			return RecordsCmd{}, nil
		}),
	}

	renameCmd := &cobra.Command{
		Use:   "rename <name> <ref>",
		Short: "Rename activities",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(args []string) (Command, error) {
			return RenameCmd{Name: args[0], Ref: args[1]}, nil
		}),
	}

	setCmd := &cobra.Command{
		Use:   "set <attribute> <value> <ref>",
		Short: "Set name, type, subtype, note or norecord",
		Args:  cobra.ExactArgs(3),
		RunE:  run(parseSet),
	}

	showCmd := &cobra.Command{
		Use:   "show [ref|YYYY-MM-DD]",
		Short: "Show activities or a day; without arguments open the browser",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(args []string) (Command, error) {
			return parseShow(args)
		}),
	}

	summaryCmd := &cobra.Command{
		Use:   "summary <ref>",
		Short: "Show the summary of activities",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(args []string) (Command, error) {
			return SummaryCmd{Ref: args[0]}, nil
		}),
	}

	unitsCmd := &cobra.Command{
		Use:       "units <metric|statute>",
		Short:     "Set the unit system",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"metric", "statute"},
		RunE: run(func(args []string) (Command, error) {
			return UnitsCmd{System: args[0]}, nil
		}),
	}

	htmlDirCmd := &cobra.Command{
		Use:   "htmldir <dir>",
		Short: "Set the directory for generated HTML data",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(args []string) (Command, error) {
			return HTMLDirCmd{Dir: args[0]}, nil
		}),
	}

	root.AddCommand(
		checkCmd,
		reportCmd(Daily, "Report the activities and monitoring data of a day"),
		reportCmd(Weekly, "Report a week"),
		reportCmd(Monthly, "Report a month"),
		deleteCmd, importCmd, listCmd, recordsCmd, renameCmd, setCmd,
		showCmd, summaryCmd, unitsCmd, htmlDirCmd,
	)
	return root
}

// execute opens the archive, runs c and always syncs and closes the
// archive afterwards.
func (a *app) execute(ctx context.Context, c Command) (err error) {
	opts, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if err := logger.Initialize(logger.Config{Debug: opts.Debug, Verbose: opts.Verbose}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	policy, err := ingest.ParsePolicy(opts.ForcePolicy)
	if err != nil {
		return err
	}

	pipeline := &migrate.Pipeline{
		DataDir: opts.DataDir,
		Version: a.version,
		Defaults: map[string]string{
			store.KeyUnitSystem:   opts.UnitSystem,
			store.KeyWeekStartDay: strconv.Itoa(opts.WeekStartDay),
		},
		Archive: archive.Options{
			Decoder:     a.decoder,
			Regenerator: export.NewArtifacts(),
			Policy:      policy,
		},
	}
	st, arc, err := pipeline.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if serr := st.Sync(); serr != nil {
			logger.Warn("cannot sync archive", zap.Error(serr))
		}
		if cerr := st.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()
	logger.Debug("archive opened", zap.String("database", opts.DatabaseDir()), zap.String("command", fmt.Sprintf("%T", c)))

	r := &runner{
		archive:     arc,
		decoder:     a.decoder,
		out:         a.out,
		interactive: a.interactive,
		width:       80,
		confirm:     a.confirm,
		browse:      a.browse,
	}
	return r.run(ctx, c)
}
