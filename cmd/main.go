package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yehorDorosh/mne-travel/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "assets",
	Short: "Static asset pipeline for the travel site",
	Long: `This command builds the site's assets (styles, pages, images, scripts and data) from src/ into dest/.
The pipeline is described by assets.star in the project root; projects without one use the built-in pipeline.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// shortcuts run the task of the same name from the pipeline
var shortcuts = map[string]string{
	"build":     "Clean the output and build every asset",
	"dev":       "Build and keep rebuilding on changes",
	"watch":     "Rebuild assets when their sources change",
	"clean":     "Delete the output directory",
	"styles":    "Compile the stylesheets",
	"assets":    "Build pages, images, scripts and data",
	"html":      "Copy and minify the pages",
	"images":    "Resize and optimise the images",
	"scripts":   "Bundle the scripts",
	"move-data": "Convert the data files to JSON",
	"compress":  "Write brotli and gzip copies of the output",
}

func shortcut(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [option=value...]",
		Short: short,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Run(c, append([]string{name}, args...))
		},
	}
}

func init() {
	cmd.AddFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(cmd.RunCmd)

	for name, short := range shortcuts {
		rootCmd.AddCommand(shortcut(name, short))
	}
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
