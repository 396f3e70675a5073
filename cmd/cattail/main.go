package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/cmd/cattail/cmds"
)

func main() {
	if err := cmds.NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("cattail failed")
		os.Exit(1)
	}
}
