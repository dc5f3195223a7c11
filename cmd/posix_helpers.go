package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yehorDorosh/mne-travel/pkg/posix"
)

func posixCmd(name, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(c *cobra.Command, args []string) error {
			return posix.Exec(name, "", c.Flags(), args)
		},
	}
	posix.Flags(name, c.Flags())
	return c
}

func init() {
	rootCmd.AddCommand(posixCmd("mv", "Cross-platform implementation of the POSIX mv command"))
	rootCmd.AddCommand(posixCmd("rm", "A cross-platform implementation of the POSIX rm command"))
	rootCmd.AddCommand(posixCmd("mkdir", "A cross-platform implementation of the POSIX mkdir command"))
}
