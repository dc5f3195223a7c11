// Package cmd implements the command line interface of the asset pipeline
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yehorDorosh/mne-travel/pkg"
	"github.com/yehorDorosh/mne-travel/pkg/buildlog"
	"github.com/yehorDorosh/mne-travel/pkg/buildsys"
	"github.com/yehorDorosh/mne-travel/pkg/config"
)

var RunCmd = &cobra.Command{
	Use:   "run [task...] [option=value...]",
	Short: "Run pipeline tasks",
	Long: `Loads the project's assets.star (or the built-in pipeline) and executes the given tasks.
Without any task the available tasks and options are listed.`,
	RunE: Run,
}

// AddFlags registers the flags understood by Run
func AddFlags(flags *pflag.FlagSet) {
	flags.BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	flags.BoolP("force", "f", false, "force build; always execute the passed tasks even if they don't have to run")
	flags.Bool("production", false, "build for production (minified output, no source maps, compressed copies)")
	flags.String("script", "", "pipeline script, relative to the project root (default assets.star)")
	flags.StringP("dir", "C", ".", "directory to search the project root from")
	flags.BoolP("quiet", "q", false, "hide progress bars")
	flags.BoolP("verbose", "v", false, "print debug messages")
}

func splitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}
	return taskArgs, options
}

type cliFlags struct {
	dry        bool
	force      bool
	production bool
	quiet      bool
	verbose    bool
	script     string
	dir        string
}

func readFlags(flags *pflag.FlagSet) (*cliFlags, error) {
	var err error
	result := &cliFlags{}

	for name, target := range map[string]*bool{
		"dry":        &result.dry,
		"force":      &result.force,
		"production": &result.production,
		"quiet":      &result.quiet,
		"verbose":    &result.verbose,
	} {
		*target, err = flags.GetBool(name)
		if err != nil {
			return nil, err
		}
	}

	result.script, err = flags.GetString("script")
	if err != nil {
		return nil, err
	}

	result.dir, err = flags.GetString("dir")
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Run executes the tasks named in args. Arguments of the form name=value set script options.
func Run(cmd *cobra.Command, args []string) error {
	flags, err := readFlags(cmd.Flags())
	if err != nil {
		return err
	}

	taskArgs, options := splitArgs(args)

	logger := zerolog.New(NewConsoleWriter(os.Stderr))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = buildlog.WithLogger(ctx, &logger)

	projectRoot, err := pkg.FindProjectRoot(flags.dir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to find the project root")
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load the configuration")
	}

	if flags.production {
		cfg.Env = "production"
	}
	if flags.script != "" {
		cfg.Script = flags.script
	}

	level := cfg.LogLevel()
	if flags.verbose {
		level = zerolog.DebugLevel
	}
	logger = logger.Level(level)

	taskList, scriptOptions, err := buildsys.LoadScript(ctx, projectRoot, options, cfg, true)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to parse tasks")
	}

	if len(taskArgs) == 0 {
		printTasks(cmd.OutOrStdout(), taskList, scriptOptions)
		return nil
	}

	opts := buildsys.RunOptions{
		DryRun:      flags.dry,
		Force:       flags.force,
		Development: cfg.Development(),
		Quiet:       flags.quiet,
		History:     buildsys.NewHistory(),
	}

	for _, name := range taskArgs {
		if _, ok := taskList[name]; !ok {
			logger.Fatal().Msgf("Task %s not found", name)
		}

		pkg.PrintTask("Running " + name)
		err = buildsys.RunTask(ctx, projectRoot, name, taskList, opts)
		if err != nil {
			if eris.Is(err, context.Canceled) {
				pkg.PrintError("Interrupted")
				os.Exit(130)
			}
			logger.Fatal().Err(err).Msgf("Failed task %s:", name)
		}
	}

	return nil
}

func printTasks(out io.Writer, taskList buildsys.TaskList, options map[string]buildsys.ScriptOption) {
	fmt.Fprintln(out, "Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0, len(taskList))
	for _, task := range taskList {
		nameLen := len(task.Short)
		if nameLen > maxNameLen {
			maxNameLen = nameLen
		}

		sortedNames = append(sortedNames, task.Short)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Fprintf(out, lineFmt, name+":", taskList[name].Desc)
	}

	if len(options) == 0 {
		return
	}

	fmt.Fprintln(out, "\nOptions:")
	optNames := make([]string, 0, len(options))
	for name := range options {
		optNames = append(optNames, name)
	}
	sort.Strings(optNames)

	for _, name := range optNames {
		opt := options[name]
		fmt.Fprintf(out, " * %s=%s\n", name, opt.Default())
		if opt.Help != "" {
			fmt.Fprintf(out, "     %s\n", opt.Help)
		}
	}
}

func init() {
	AddFlags(RunCmd.Flags())
}
