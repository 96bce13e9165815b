package main

import (
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"go.lazytran.dev/lazytran/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate a lazytran.yaml",
	}
	cmd.AddCommand(newConfigGenerateCmd())
	cmd.AddCommand(newConfigTestCmd())
	return cmd
}

func newConfigGenerateCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write a lazytran.yaml populated with defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "lazytran.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteTemplate(path, force); err != nil {
				return err
			}
			color.Green.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Load and validate the configured lazytran.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				color.Red.Println("load failed:")
				color.Red.Println(err.Error())
				return err
			}
			if err := config.Validate(cfg); err != nil {
				color.Red.Println("invalid configuration:")
				color.Red.Println(err.Error())
				return err
			}

			color.Green.Println("configuration OK")
			printField("public.address", cfg.Public.Address)
			printField("public.version", cfg.Public.Version)
			printField("public.protocol", fmt.Sprint(cfg.Public.Protocol))
			printField("server.command", cfg.Server.Command)
			printField("server.address", cfg.Server.Address)
			printField("server.max_players", fmt.Sprint(cfg.Server.MaxPlayers))
			printField("time.sleep_after", cfg.Time.SleepAfter.String())
			printField("join.methods", fmt.Sprint(cfg.Join.Methods))
			printField("rcon.enabled", fmt.Sprint(cfg.Rcon.Enabled))
			printField("lockout.enabled", fmt.Sprint(cfg.Lockout.Enabled))
			return nil
		},
	}
	return cmd
}

func printField(name, value string) {
	color.Cyan.Print(name)
	fmt.Print(" = ")
	color.White.Println(value)
}
