package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/cli/output"
	"github.com/yndnr/tokmesh-client/internal/infra/buildinfo"
)

// Exit codes beyond the generic 1.
const (
	// ExitNoSession means there is no usable session; log in again.
	ExitNoSession = 3

	// ExitInvalidSession means the identity service rejected the session.
	ExitInvalidSession = 4
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    buildinfo.Name,
		Usage:   "Keep an authenticated session fresh and shared between processes",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ImportCommand(),
			StatusCommand(),
			TokenCommand(),
			RefreshCommand(),
			ValidateCommand(),
			LogoutCommand(),
			WatchCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return err
			}
			_, err := parseAssignments(c.StringSlice("set"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Config file (default ~/.tokmesh/client.yaml)",
			EnvVars: []string{"TOKMESH_CLIENT_CONFIG"},
		},
		&cli.StringSliceFlag{
			Name:  "set",
			Usage: "Override a config key, e.g. --set storage.type=redis (repeatable)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	Set        []string

	// Output format
	Output output.Format
	Wide   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		ConfigPath: c.String("config"),
		LogLevel:   c.String("log-level"),
		Set:        c.StringSlice("set"),
		Output:     format,
		Wide:       c.Bool("wide"),
	}
}

// Overrides returns the config overrides carried by the flags.
func (f *GlobalFlags) Overrides() (map[string]any, error) {
	overrides, err := parseAssignments(f.Set)
	if err != nil {
		return nil, err
	}
	if f.LogLevel != "" {
		overrides["log.level"] = f.LogLevel
	}
	return overrides, nil
}

// Formatter returns the formatter selected by --output and --wide.
func (f *GlobalFlags) Formatter() output.Formatter {
	return output.NewFormatter(f.Output, f.Wide)
}

// parseAssignments parses KEY=VALUE pairs into a map of dotted keys.
// Comma-separated values become lists so keys like
// remote.oauth2.scopes can be set.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want KEY=VALUE", pair)
		}
		if strings.Contains(value, ",") {
			out[key] = strings.Split(value, ",")
			continue
		}
		out[key] = value
	}
	return out, nil
}
