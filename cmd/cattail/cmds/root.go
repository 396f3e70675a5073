// Package cmds holds the cattail command line.
package cmds

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cattail/pkg/config"
	"github.com/go-go-golems/cattail/pkg/logging"
)

type app struct {
	configFile string
	settings   *config.Settings
}

func NewRootCommand() *cobra.Command {
	a := &app{}
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:           "cattail",
		Short:         "cattail serves a chat sidebar panel and talks to it from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, _, err := config.Load(config.LoadOptions{
				ConfigFile: a.configFile,
				Flags:      cmd.Flags(),
			})
			if err != nil {
				return err
			}
			if err := logging.Init(s.Log); err != nil {
				return errors.Wrap(err, "init logging")
			}
			a.settings = s
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: ./cattail.yaml or ~/.config/cattail/cattail.yaml)")
	pf.String("log-level", defaults.Log.Level, "log level (trace, debug, info, warn, error)")
	pf.String("log-format", defaults.Log.Format, "log format (auto, console, json)")

	root.AddCommand(
		newServeCommand(a),
		newChatCommand(a),
		newOpenCommand(a),
		newTapCommand(a),
		newConfigCommand(a),
	)
	return root
}
