package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cattail/pkg/config"
	"github.com/go-go-golems/cattail/pkg/host"
)

func newOpenCommand(a *app) *cobra.Command {
	var copyURL bool
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Run the open-chat command on a running workbench",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := executeCommand(cmd.Context(), a.settings.ResolvedBaseURL(), host.OpenChatCommand)
			if err != nil {
				return err
			}
			return printReveal(cmd.OutOrStdout(), res, copyURL)
		},
	}
	cmd.Flags().String("base-url", config.Defaults().BaseURL, "workbench URL (default: derived from the configured addr)")
	cmd.Flags().BoolVar(&copyURL, "copy", false, "copy the view URL to the clipboard when it has to be opened")
	return cmd
}

func executeCommand(ctx context.Context, baseURL, commandID string) (host.RevealResult, error) {
	var res host.RevealResult
	endpoint := baseURL + "/commands/" + url.PathEscape(commandID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return res, errors.Wrap(err, "build command request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return res, errors.Wrapf(err, "execute %s", commandID)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, errors.Errorf("execute %s: %s: %s", commandID, resp.Status, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, errors.Wrap(err, "decode command result")
	}
	return res, nil
}

func printReveal(w io.Writer, res host.RevealResult, copyURL bool) error {
	switch res.Action {
	case host.RevealNone:
		_, err := fmt.Fprintf(w, "chat view %s is already visible\n", res.ContainerID)
		return err
	case host.RevealFocus:
		_, err := fmt.Fprintf(w, "asked chat view %s to come to the front\n", res.ContainerID)
		return err
	case host.RevealOpen:
		if copyURL {
			if err := clipboard.WriteAll(res.URL); err != nil {
				log.Warn().Err(err).Msg("could not copy view URL")
			} else {
				fmt.Fprintln(os.Stderr, "view URL copied to the clipboard")
			}
		}
		_, err := fmt.Fprintf(w, "no chat view is open, open %s\n", res.URL)
		return err
	default:
		return errors.Errorf("unexpected reveal action %q", res.Action)
	}
}
