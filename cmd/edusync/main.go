package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Commands share flags through opts so
// tests can build independent trees.
func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "edusync",
		Short:         "EduSync: grading platform client",
		Long:          "EduSync is a terminal client for the exam grading platform: sign in, browse your dashboard and, as an administrator, manage teacher accounts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default: none, built-in defaults and environment)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newMenuCmd(opts),
		newTeachersCmd(opts),
		newDevServerCmd(opts),
		newVersionCmd(),
	)
	return root
}

type rootOptions struct {
	cfgFile string
	// newApp is replaced in tests to point the client at a test server.
	newApp func(cmd *cobra.Command, cfgFile string) (*app, error)
}

func (o *rootOptions) app(cmd *cobra.Command) (*app, error) {
	if o.newApp != nil {
		return o.newApp(cmd, o.cfgFile)
	}
	return newApp(cmd, o.cfgFile)
}

func main() {
	if err := newRootCmd(&rootOptions{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
