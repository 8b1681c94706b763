package main

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// rootCommand carries the dependencies every sub-command shares, so tests
// can run the CLI against an in-memory filesystem and a capture buffer.
type rootCommand struct {
	fs     afero.Fs
	stdout io.Writer
	logger *logrus.Logger
	cmd    *cobra.Command

	verbose bool
}

func newRootCommand(fs afero.Fs, stdout io.Writer) *rootCommand {
	c := &rootCommand{fs: fs, stdout: stdout, logger: logrus.New()}

	c.cmd = &cobra.Command{
		Use:           "runec",
		Short:         "runec runs and inspects rune modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.setupLogger()
		},
	}
	c.cmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	c.cmd.AddCommand(c.newRunCommand(), c.newInspectCommand())
	return c
}

func (c *rootCommand) setupLogger() {
	c.logger.SetOutput(colorable.NewColorableStderr())
	c.logger.SetFormatter(&logrus.TextFormatter{
		ForceColors: isatty.IsTerminal(os.Stderr.Fd()),
	})
	if c.verbose {
		c.logger.SetLevel(logrus.DebugLevel)
	}
}

// execute runs the CLI and maps any failure to exit code 1.
func (c *rootCommand) execute() int {
	if err := c.cmd.Execute(); err != nil {
		c.logger.Error(err.Error())
		return 1
	}
	return 0
}

// loadModule reads a module file and returns its raw bytes; callers decode
// them.
func (c *rootCommand) loadModule(path string) ([]byte, error) {
	return afero.ReadFile(c.fs, path)
}
