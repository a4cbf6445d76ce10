package command

import (
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/client/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration with secrets masked",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration",
				Action: configValidate,
			},
			{
				Name:   "path",
				Usage:  "Print the default config file path",
				Action: configPath,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.ClientConfig, string, error) {
	flags := ParseGlobalFlags(c)
	overrides, err := flags.Overrides()
	if err != nil {
		return nil, "", err
	}
	cfg, loader, err := config.Load(flags.ConfigPath, overrides)
	if err != nil {
		return nil, "", err
	}
	return cfg, loader.FilePath(), nil
}

func configShow(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}

	flat := config.Flatten(config.Sanitize(cfg))
	flags := ParseGlobalFlags(c)
	if flags.Output.IsMachineReadable() {
		return flags.Formatter().Format(c.App.Writer, maps.Unflatten(flat, "."))
	}
	return flags.Formatter().Format(c.App.Writer, flat)
}

func configValidate(c *cli.Context) error {
	_, path, err := loadConfig(c)
	if err != nil {
		return err
	}
	if path == "" {
		path = "defaults and environment"
	}
	fmt.Fprintf(c.App.Writer, "Configuration is valid (%s).\n", path)
	return nil
}

func configPath(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, config.DefaultConfigPath())
	return nil
}
