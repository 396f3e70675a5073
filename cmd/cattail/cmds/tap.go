package cmds

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cattail/pkg/config"
	"github.com/go-go-golems/cattail/pkg/redisstream"
	"github.com/go-go-golems/cattail/pkg/tap"
)

func newTapCommand(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Follow the envelopes a workbench mirrors to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs := a.settings.Tap.Redis
			client := redisstream.NewClient(rs)
			defer func() {
				_ = client.Close()
			}()

			ctx := cmd.Context()
			if err := client.Ping(ctx).Err(); err != nil {
				return errors.Wrapf(err, "connect to redis at %s", rs.Addr)
			}
			if err := redisstream.EnsureGroupAtTail(ctx, client, rs.Stream, rs.Group); err != nil {
				return err
			}
			sub, err := redisstream.BuildGroupSubscriber(client, rs)
			if err != nil {
				return err
			}
			defer func() {
				_ = sub.Close()
			}()

			msgs, err := sub.Subscribe(ctx, rs.Stream)
			if err != nil {
				return errors.Wrapf(err, "subscribe to %s", rs.Stream)
			}
			out := cmd.OutOrStdout()
			for msg := range msgs {
				err := printRecord(out, msg.Payload, raw)
				msg.Ack()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	d := config.Defaults()
	cmd.Flags().String("redis-addr", d.Tap.Redis.Addr, "Redis address of the envelope stream")
	cmd.Flags().BoolVar(&raw, "raw", false, "print records as JSON lines")
	return cmd
}

func printRecord(w io.Writer, payload []byte, raw bool) error {
	if raw {
		_, err := fmt.Fprintf(w, "%s\n", payload)
		return err
	}
	var r tap.Record
	if err := json.Unmarshal(payload, &r); err != nil {
		_, err = fmt.Fprintf(w, "? %s\n", payload)
		return err
	}
	line := fmt.Sprintf("%s %-10s %s %s", r.At.Format("15:04:05.000"), r.Direction, r.ContainerID, r.Envelope.Kind)
	if r.Envelope.Text != "" {
		line += fmt.Sprintf(" %q", r.Envelope.Text)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
