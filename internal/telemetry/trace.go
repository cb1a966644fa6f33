package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "run")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)
	return ctx, span
}

// StartRunSpan creates the root span of an engine run.
func StartRunSpan(ctx context.Context, goal string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("auto")
	ctx, span := tracer.Start(ctx, "auto.run")

	span.SetAttributes(
		attribute.String("goal", goal),
		attribute.String("component", "auto"),
	)
	return ctx, span
}

// StartTaskSpan creates a span for executing one atomic task.
func StartTaskSpan(ctx context.Context, id int, description string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("auto")
	ctx, span := tracer.Start(ctx, "auto.task")

	span.SetAttributes(
		attribute.Int("task.id", id),
		attribute.String("task.description", description),
		attribute.String("component", "auto"),
	)
	return ctx, span
}

// StartOracleSpan creates a span for one oracle provider call.
func StartOracleSpan(ctx context.Context, providerName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("oracle")
	ctx, span := tracer.Start(ctx, "oracle.generate", trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("provider", providerName),
		attribute.String("component", "oracle"),
	)
	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// This should be called when an operation fails.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err, or success with attrs, and ends the span.
//
// Usage:
//
//	defer func() { telemetry.End(span, err) }()
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.SetAttributes(attrs...)
		RecordError(span, err)
	} else {
		RecordSuccess(span, attrs...)
	}
	span.End()
}

// EndTask ends a task span, marking it failed with message unless ok.
func EndTask(span trace.Span, ok bool, message string, commands int) {
	span.SetAttributes(attribute.Int("task.commands", commands))
	if ok {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, message)
	}
	span.End()
}
