// Package config holds the root command line of motionpad.
package config

import (
	"github.com/alecthomas/kong"

	"github.com/Alia5/motionpad/internal/cmd"
	"github.com/Alia5/motionpad/internal/log"
)

type CLI struct {
	ConfigFile string           `name:"config" help:"Configuration file (json, yaml or toml)" type:"path" env:"MOTIONPAD_CONFIG"`
	Version    kong.VersionFlag `help:"Print version and exit"`
	Log        log.Config       `embed:"" prefix:"log."`

	Run     cmd.Run           `cmd:"" help:"Stream device motion to a host as a game controller"`
	Receive cmd.Receive       `cmd:"" help:"Accept a controller over TCP and log its frames"`
	Sensors cmd.Sensors       `cmd:"" help:"List IIO motion sensors"`
	Config  cmd.ConfigCommand `cmd:"" help:"Configuration helpers"`
}
