package config

import (
	"github.com/urfave/cli/v3"
)

// Flag names shared by the commands.
const (
	FlagEnvFile    = "env-file"
	FlagHost       = "host"
	FlagPort       = "port"
	FlagTLS        = "tls"
	FlagInsecure   = "insecure"
	FlagWSPath     = "ws-path"
	FlagCodec      = "codec"
	FlagReconnect  = "reconnect-delay"
	FlagMaxBackoff = "max-reconnect-delay"
	FlagLogLevel   = "log-level"
	FlagLogFormat  = "log-format"
	FlagTranscript = "transcript"
	FlagListen     = "listen"
	FlagLifts      = "lifts"
	FlagPower      = "power"
)

// ConnectionFlags are the flags every command connecting to the backend
// accepts. Flags left unset keep the environment's value.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: FlagEnvFile, Value: ".env", Usage: "file with LIFT_* variables to load"},
		&cli.StringFlag{Name: FlagHost, Usage: "backend host (LIFT_HOST)"},
		&cli.IntFlag{Name: FlagPort, Usage: "backend port, 0 for the scheme default (LIFT_PORT)"},
		&cli.BoolFlag{Name: FlagTLS, Usage: "connect with wss (LIFT_USE_TLS)"},
		&cli.BoolFlag{Name: FlagInsecure, Usage: "skip TLS certificate verification (LIFT_TLS_INSECURE)"},
		&cli.StringFlag{Name: FlagWSPath, Usage: "websocket path, ws or api/ws (LIFT_WS_PATH)"},
		&cli.DurationFlag{Name: FlagReconnect, Usage: "delay before reconnecting (LIFT_RECONNECT_DELAY)"},
		&cli.DurationFlag{Name: FlagMaxBackoff, Usage: "enables exponential backoff up to this delay (LIFT_RECONNECT_MAX_DELAY)"},
		&cli.StringFlag{Name: FlagLogLevel, Usage: "debug, info, warn or error (LIFT_LOG_LEVEL)"},
		&cli.StringFlag{Name: FlagLogFormat, Usage: "console or json (LIFT_LOG_FORMAT)"},
		&cli.StringFlag{Name: FlagTranscript, Usage: "record every frame to this file (LIFT_TRANSCRIPT)"},
	}
}

// FromCommand loads the env file named by the command, then applies every
// flag the user set.
func FromCommand(cmd *cli.Command) (*Config, error) {
	cfg, err := Load(cmd.String(FlagEnvFile))
	if err != nil {
		return nil, err
	}

	if cmd.IsSet(FlagHost) {
		cfg.Host = cmd.String(FlagHost)
	}
	if cmd.IsSet(FlagPort) {
		cfg.Port = int(cmd.Int(FlagPort))
	}
	if cmd.IsSet(FlagTLS) {
		cfg.UseTLS = cmd.Bool(FlagTLS)
	}
	if cmd.IsSet(FlagInsecure) {
		cfg.InsecureSkipVerify = cmd.Bool(FlagInsecure)
	}
	if cmd.IsSet(FlagWSPath) {
		cfg.WSPath = cmd.String(FlagWSPath)
	}
	if cmd.IsSet(FlagCodec) {
		cfg.Codec = cmd.String(FlagCodec)
	}
	if cmd.IsSet(FlagReconnect) {
		cfg.ReconnectDelay = cmd.Duration(FlagReconnect)
	}
	if cmd.IsSet(FlagMaxBackoff) {
		cfg.MaxReconnectDelay = cmd.Duration(FlagMaxBackoff)
	}
	if cmd.IsSet(FlagLogLevel) {
		cfg.LogLevel = cmd.String(FlagLogLevel)
	}
	if cmd.IsSet(FlagLogFormat) {
		cfg.LogFormat = cmd.String(FlagLogFormat)
	}
	if cmd.IsSet(FlagTranscript) {
		cfg.Transcript = cmd.String(FlagTranscript)
	}
	if cmd.IsSet(FlagListen) {
		cfg.PanelAddr = cmd.String(FlagListen)
	}
	if cmd.IsSet(FlagLifts) {
		cfg.SimLifts = cmd.String(FlagLifts)
	}
	if cmd.IsSet(FlagPower) {
		cfg.SimPowerState = int(cmd.Int(FlagPower))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
