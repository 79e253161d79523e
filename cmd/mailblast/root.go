package main

import (
	"github.com/spf13/cobra"

	"github.com/pure-golang/mailblast/env"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "mailblast",
		Short:         "Send many copies of a message through SMTP accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return env.LoadFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", env.DefaultEnvFile, "file with environment variables")

	root.AddCommand(newSendCmd(), newAdviseCmd(), newStatusCmd())
	return root
}
