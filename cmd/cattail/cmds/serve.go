package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cattail/pkg/config"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tap"
	"github.com/go-go-golems/cattail/pkg/view"
	"github.com/go-go-golems/cattail/pkg/workbench"
)

func newServeCommand(a *app) *cobra.Command {
	d := config.Defaults()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workbench with the chat extension activated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), a.settings)
		},
	}
	f := cmd.Flags()
	f.String("addr", d.Addr, "listen address")
	f.String("base-url", d.BaseURL, "externally reachable URL (default: derived from --addr)")
	f.Duration("reply-delay", d.ReplyDelay, "delay before the assistant answers")
	f.Duration("attach-timeout", d.AttachTimeout, "dispose containers whose socket never attaches")
	f.String("extension-root", d.ExtensionRoot, "directory the view may load resources from")
	f.Bool("tap", d.Tap.Enabled, "mirror envelopes onto the in-process tap")
	f.Bool("tap-redis", d.Tap.Redis.Enabled, "also append envelopes to a Redis stream")
	f.String("redis-addr", d.Tap.Redis.Addr, "Redis address for the envelope stream")
	return cmd
}

func serve(ctx context.Context, s *config.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	renderer, err := view.NewRenderer(s.View)
	if err != nil {
		return errors.Wrap(err, "create view renderer")
	}
	t, err := tap.New(s.Tap)
	if err != nil {
		return errors.Wrap(err, "create envelope tap")
	}

	wb := workbench.New(workbench.Options{
		BaseURL:        s.ResolvedBaseURL(),
		AttachTimeout:  s.AttachTimeout,
		OutboxSize:     s.OutboxSize,
		Theme:          workbench.DefaultTheme().Merge(s.Theme),
		Tap:            t,
		ResourceFilter: s.Resources.Options(),
	})

	ext := host.NewExtension(host.ExtensionOptions{
		Provider: host.ChatViewProviderOptions{
			ExtensionRoot: s.ExtensionRoot,
			ReplyDelay:    s.ReplyDelay,
			Document:      renderer,
		},
	})
	if err := ext.Activate(ctx, wb); err != nil {
		_ = t.Close()
		return errors.Wrap(err, "activate extension")
	}
	defer func() {
		_ = ext.Deactivate()
	}()

	srv, err := workbench.NewServer(wb, workbench.ServerOptions{
		Addr:    s.Addr,
		Handler: workbench.NewHandler(wb, workbench.HandlerOptions{DefaultView: host.ViewID}),
		Tap:     t,
	})
	if err != nil {
		_ = t.Close()
		return err
	}

	log.Info().
		Str("addr", s.Addr).
		Str("url", wb.ViewURL(host.ViewID)).
		Dur("reply_delay", s.ReplyDelay).
		Bool("tap_redis", s.Tap.Redis.Enabled).
		Msg("serving chat view")
	return srv.Run(ctx)
}
