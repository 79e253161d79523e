package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/env"
	"github.com/pure-golang/mailblast/kv"
	"github.com/pure-golang/mailblast/logger"
	"github.com/pure-golang/mailblast/queue/encoders"
	"github.com/pure-golang/mailblast/sinks"
)

func newStatusCmd() *cobra.Command {
	var all, forget, asJSON bool
	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show runs mirrored into the key-value store",
		Long: "Reads the progress mirror written by send with SINK_KV=true. " +
			"Without a run id the latest run is shown.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				sinkCfg sinks.Config
				kvCfg   kv.Config
				logCfg  logger.Config
			)
			if err := env.InitConfig(&logCfg, &sinkCfg, &kvCfg); err != nil {
				return err
			}
			if kvCfg.Provider != kv.ProviderRedis {
				return errors.Errorf("status reads the redis mirror, KV_PROVIDER is %q", kvCfg.Provider)
			}
			if forget && len(args) == 0 {
				return errors.New("--forget needs a run id")
			}

			ctx := cmd.Context()
			store, err := kv.New(ctx, kvCfg, logger.NewDefault(logCfg))
			if err != nil {
				return err
			}
			defer store.Close()
			r := sinks.NewKVReader(store, sinkCfg.KVPrefix)
			out := cmd.OutOrStdout()

			if forget {
				if err := r.Forget(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "forgot run %s\n", args[0])
				return nil
			}

			var records []sinks.RunRecord
			switch {
			case all:
				records, err = r.Runs(ctx)
			case len(args) == 1:
				var rec sinks.RunRecord
				rec, err = r.Run(ctx, args[0])
				records = []sinks.RunRecord{rec}
			default:
				var id string
				if id, err = r.Latest(ctx); err == nil {
					var rec sinks.RunRecord
					rec, err = r.Run(ctx, id)
					records = []sinks.RunRecord{rec}
				}
			}
			if err != nil {
				return err
			}

			if asJSON {
				var body any = records
				if !all {
					body = records[0]
				}
				b, err := encoders.JSON{}.Encode(body)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			for _, rec := range records {
				printRun(out, rec, all)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every run, newest first")
	cmd.Flags().BoolVar(&forget, "forget", false, "delete the given run from the mirror")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// printRun prints one summary line, or the full record when brief is false.
func printRun(w io.Writer, rec sinks.RunRecord, brief bool) {
	label := blast.ProgressLabel(rec.Sent, rec.Total)
	if brief {
		fmt.Fprintf(w, "%s  %-8s %s  %s\n", rec.ID, rec.Status, label, rec.StartedAt.Local().Format(time.DateTime))
		return
	}
	fmt.Fprintf(w, "run:      %s\n", rec.ID)
	fmt.Fprintf(w, "status:   %s\n", rec.Status)
	fmt.Fprintf(w, "progress: %s\n", label)
	fmt.Fprintf(w, "started:  %s\n", rec.StartedAt.Local().Format(time.DateTime))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(w, "finished: %s (%s)\n", rec.FinishedAt.Local().Format(time.DateTime), rec.FinishedAt.Sub(rec.StartedAt))
	}
	workers := make([]int, 0, len(rec.Workers))
	for i := range rec.Workers {
		workers = append(workers, i)
	}
	sort.Ints(workers)
	for _, i := range workers {
		fmt.Fprintf(w, "worker %d: %d sent\n", i, rec.Workers[i])
	}
	for _, f := range rec.Failures {
		fmt.Fprintf(w, "failure:  %s\n", f)
	}
}
