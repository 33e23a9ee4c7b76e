package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"al.essio.dev/pkg/shellescape"
	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
	gotoml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/her/internal/config"
)

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if found := config.FindFile(); found != "" {
		return found
	}
	return config.DefaultPath()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the her config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg(path + " already exists; use --force to overwrite")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(
		initCmd,
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), configPath())
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective config",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				shown := *cfg
				if shown.APIKey != "" {
					shown.APIKey = "<redacted>"
				}
				b, err := gotoml.Marshal(&shown)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), string(b))
				return nil
			},
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Open the config file in $EDITOR",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				editor := strings.TrimSpace(os.Getenv("EDITOR"))
				if editor == "" {
					editor = "vi"
				}
				c := exec.Command("sh", "-c", fmt.Sprintf("%s %s", editor, shellescape.Quote(configPath())))
				c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
				if err := c.Run(); err != nil {
					return errbuilder.New().
						WithCode(errbuilder.CodeInternal).
						WithMsg("editor failed").
						WithCause(err)
				}
				return nil
			},
		},
	)
	return cmd
}
