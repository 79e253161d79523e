package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/mail"
)

func newAdviseCmd() *cobra.Command {
	var (
		amount        int
		servers       []string
		local, public bool
	)
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Print the recommended concurrency for a batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount < 1 {
				return errors.Errorf("amount must be positive, got %d", amount)
			}
			mode := localityAuto
			switch {
			case local && public:
				return errors.New("--local and --public are exclusive")
			case local:
				mode = localityLocal
			case public:
				mode = localityPublic
			case len(servers) == 0:
				return errors.New("--server is required without --local or --public")
			}

			accounts := make([]mail.Account, len(servers))
			for i, s := range servers {
				accounts[i] = mail.Account{Server: s}
			}
			isLocal, err := locality(cmd.Context(), mode, accounts, nil)
			if err != nil {
				return err
			}

			c := blast.RecommendFor(amount, isLocal)
			where := "public"
			if isLocal {
				where = "local"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:      %s\n", where)
			fmt.Fprintf(out, "concurrency: %s\n", c.String())
			fmt.Fprintf(out, "workers:     %d per account\n", c.WorkersPer(amount))
			if c.Delay > 0 {
				fmt.Fprintf(out, "delay:       %s between sends\n", c.Delay)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&amount, "amount", "n", 1, "copies per account")
	cmd.Flags().StringSliceVar(&servers, "server", nil, "SMTP servers (host[:port])")
	cmd.Flags().BoolVar(&local, "local", false, "treat the servers as local")
	cmd.Flags().BoolVar(&public, "public", false, "treat the servers as public")
	return cmd
}
