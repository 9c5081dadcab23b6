package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/musterhq/muster/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "muster config validate [options]",
				Description: "Validates the configuration file: server settings, intervals, paths, and attachment block patterns.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.flags.Config == nil {
		return fmt.Errorf("configuration not loaded")
	}

	result := cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Valid    bool `json:"valid"`
			Errors   any  `json:"errors,omitempty"`
			Warnings any  `json:"warnings,omitempty"`
			Checks   any  `json:"checks,omitempty"`
		}{
			Valid:    result.IsValid(),
			Errors:   result.Errors,
			Warnings: result.Warnings,
			Checks:   result.Checks,
		})
	}

	p.Section("Configuration")

	for _, check := range result.Checks {
		p.CheckItem(check.Category, check.Message)
		for _, d := range check.Details {
			p.Infof("    %s", d)
		}
	}

	for _, warning := range result.Warnings {
		detail := warning.Message
		if warning.Item != "" {
			detail = warning.Item + ": " + detail
		}
		p.WarnItem(warning.Category, detail)
	}

	for _, e := range result.Errors {
		detail := e.Message
		if e.Item != "" {
			detail = e.Item + ": " + detail
		}
		p.FailItem(e.Category, detail)
		if e.Fix != "" {
			p.Infof("    fix: %s", e.Fix)
		}
	}

	p.Printf("")
	if !result.IsValid() {
		p.Errorf("Configuration has %d error(s)", len(result.Errors))
		return fmt.Errorf("configuration is invalid")
	}

	p.Successf("Configuration is valid")
	return nil
}
