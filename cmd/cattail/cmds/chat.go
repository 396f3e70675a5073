package cmds

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cattail/pkg/config"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tui"
	"github.com/go-go-golems/cattail/pkg/viewclient"
)

func newChatCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat view of a running workbench in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.settings
			c, err := viewclient.Open(cmd.Context(), s.ResolvedBaseURL(), host.ViewID)
			if err != nil {
				return errors.Wrap(err, "open chat view")
			}
			defer func() {
				_ = c.Close()
			}()
			if err := tui.Run(cmd.Context(), c, tui.Options{Document: s.View}); err != nil {
				return err
			}
			return c.Err()
		},
	}
	cmd.Flags().String("base-url", config.Defaults().BaseURL, "workbench URL (default: derived from the configured addr)")
	return cmd
}
