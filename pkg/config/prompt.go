package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/cattail/pkg/logging"
)

// Prompt asks for the settings people usually change, starting from base.
func Prompt(ui *input.UI, base Settings) (Settings, error) {
	s := base

	addr, err := ui.Ask("Listen address", &input.Options{
		Default:  s.Addr,
		Required: true,
		Loop:     true,
	})
	if err != nil {
		return s, errors.Wrap(err, "ask addr")
	}
	s.Addr = strings.TrimSpace(addr)

	delay, err := ui.Ask("Reply delay", &input.Options{
		Default:  s.ReplyDelay.String(),
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			d, err := time.ParseDuration(strings.TrimSpace(answer))
			if err != nil {
				return errors.Errorf("%q is not a duration like 500ms", answer)
			}
			if d <= 0 {
				return errors.New("the delay must be positive")
			}
			return nil
		},
	})
	if err != nil {
		return s, errors.Wrap(err, "ask reply delay")
	}
	s.ReplyDelay, _ = time.ParseDuration(strings.TrimSpace(delay))

	level, err := ui.Ask("Log level (trace, debug, info, warn, error)", &input.Options{
		Default:  s.Log.Level,
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			_, err := logging.ParseLevel(strings.TrimSpace(answer))
			return err
		},
	})
	if err != nil {
		return s, errors.Wrap(err, "ask log level")
	}
	s.Log.Level = strings.TrimSpace(level)

	def := "n"
	if s.Tap.Redis.Enabled {
		def = "y"
	}
	mirror, err := ui.Ask("Mirror envelopes to a Redis stream? [y/n]", &input.Options{
		Default:  def,
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return s, errors.Wrap(err, "ask redis mirror")
	}
	s.Tap.Redis.Enabled = mirror == "y" || mirror == "Y"

	if s.Tap.Redis.Enabled {
		s.Tap.Enabled = true
		redisAddr, err := ui.Ask("Redis address", &input.Options{
			Default:  s.Tap.Redis.Addr,
			Required: true,
			Loop:     true,
		})
		if err != nil {
			return s, errors.Wrap(err, "ask redis addr")
		}
		s.Tap.Redis.Addr = strings.TrimSpace(redisAddr)
	}

	return s, s.Validate()
}
