package log

import "context"

// StructuredLogger writes the invoice lifecycle records with a fixed shape
// so they can be queried across deployments.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogInvoiceCreated(ctx context.Context, id int64, invoiceNo string, attempts int) {
	fields := NewFields().WithInvoice(id, invoiceNo).WithOperation(OpCreate).add(FieldAttempt, attempts)
	sl.logger.WithComponent(ComponentInvoice).InfoContext(ctx, "Invoice created", fields...)
}

// LogNumberClash records an attempt that lost the race for invoiceNo.
func (sl *StructuredLogger) LogNumberClash(ctx context.Context, invoiceNo string, attempt, max int) {
	fields := NewFields().WithInvoice(0, invoiceNo).WithAttempt(attempt, max).WithOperation(OpAllocate)
	sl.logger.WithComponent(ComponentInvoice).WarnContext(ctx, "Invoice number taken, retrying", fields...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields Fields) {
	fields = fields.WithError(err).WithOperation(operation)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields...)
}
