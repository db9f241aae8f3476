package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobUUID is the standardized structured logging key for job identifiers.
	FieldJobUUID = "job_uuid"
	// FieldTenant is the standardized structured logging key for tenant ids.
	FieldTenant = "tenant"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldStatus is the standardized structured logging key for lifecycle statuses.
	FieldStatus = "status"
	// FieldEventType is the standardized structured logging key for machine-readable event labels.
	FieldEventType = "event_type"
	// FieldTransferUUID is the standardized structured logging key for transfer event identifiers.
	FieldTransferUUID = "transfer_uuid"
	// FieldErrorHint is the standardized structured logging key for operator guidance on errors.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	jobUUIDContextKey contextKey = "conveyor.job_uuid"
	tenantContextKey  contextKey = "conveyor.tenant"
	stageContextKey   contextKey = "conveyor.stage"
)

// WithJob annotates the context with the identifiers of the unit of work
// currently being driven; loggers built through WithContext pick them up.
func WithJob(ctx context.Context, jobUUID, tenantID, stage string) context.Context {
	if jobUUID != "" {
		ctx = context.WithValue(ctx, jobUUIDContextKey, jobUUID)
	}
	if tenantID != "" {
		ctx = context.WithValue(ctx, tenantContextKey, tenantID)
	}
	if stage != "" {
		ctx = context.WithValue(ctx, stageContextKey, stage)
	}
	return ctx
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if v, ok := ctx.Value(jobUUIDContextKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldJobUUID, v))
	}
	if v, ok := ctx.Value(tenantContextKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldTenant, v))
	}
	if v, ok := ctx.Value(stageContextKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldStage, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
