package cli

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/pure-golang/mailblast/executor/cli")

func startHookSpan(ctx context.Context, command string, args []string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hook.Execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("hook.command", command),
			attribute.StringSlice("hook.args", args),
		),
	)
}

// endHookSpan records the exit code when the command ran and failed.
func endHookSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetAttributes(attribute.Int("hook.exit_code", 0))
		span.SetStatus(codes.Ok, "")
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		span.SetAttributes(attribute.Int("hook.exit_code", exitErr.ExitCode()))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
