package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/httpserver"
	"github.com/pure-golang/mailblast/httpserver/control"
	"github.com/pure-golang/mailblast/httpserver/std"
	"github.com/pure-golang/mailblast/logger"
	"github.com/pure-golang/mailblast/metrics"
	"github.com/pure-golang/mailblast/tracing"
	"github.com/pure-golang/mailblast/tracing/jaeger"
)

var errAborted = errors.New("send aborted")

func newSendCmd() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the configured batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), &c.Send)
			return runSend(cmd, c)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func runSend(cmd *cobra.Command, c Config) error {
	log := logger.InitDefault(c.Logger)
	var done cleanup
	defer done.run(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(jaeger.NewProviderBuilder(c.Tracing))
	if err != nil {
		log.Warn("tracing disabled", "error", err.Error())
	}
	done.add(func(context.Context) error { return tp.Close() })

	m, err := metrics.InitDefault(c.Metrics)
	if err != nil {
		return err
	}
	done.add(func(context.Context) error { return m.Close() })

	plan, err := buildPlan(ctx, c.Send, nil)
	if err != nil {
		return err
	}

	extra, err := buildSinks(ctx, c, log, &done)
	if err != nil {
		return err
	}
	sink := append(blast.MultiSink{blast.NewLogSink(log, plan.Total*len(plan.Accounts))}, extra...)

	coord := blast.New(newDialer(c, log), &blast.Options{
		Logger:       log,
		Sink:         sink,
		PollInterval: c.Send.Progress,
	})

	if c.Control.Enabled {
		var srv httpserver.RunableProvider = std.New(c.Control, control.NewHandler(coord, log), log)
		srv.Run()
		done.add(func(context.Context) error { return srv.Close() })
		log.Info("control server listening", "addr", srv.Addr())
	}

	log.Info("plan", "accounts", len(plan.Accounts), "copies", plan.Total, "recipients", len(plan.Recipients), "concurrency", plan.Concurrency.String())
	if err := coord.Submit(ctx, plan); err != nil {
		return err
	}

	res, err := coord.Wait(context.Background())
	fmt.Fprintf(cmd.OutOrStdout(), "%s (run %s, %s)\n", blast.ProgressLabel(res.Sent, res.Total), res.RunID, res.Duration.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if res.Aborted {
		return errAborted
	}
	return nil
}
