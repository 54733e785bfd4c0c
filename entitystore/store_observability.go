package entitystore

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	logMsgStatementExecuted = "sparql executed: "
	logMsgOperation         = "entitystore operation: "

	logAttrError      = "error"
	logAttrDurationMS = "duration_ms"
	logAttrStatement  = "statement"
	logAttrSubject    = "subject"
	logAttrRecordType = "record_type"

	statusSuccess  = "success"
	statusError    = "error"
	statusConflict = "conflict"

	errorTypeConflict   = "update_conflict"
	errorTypeNotFound   = "not_found"
	errorTypeStore      = "store_failed"
	errorTypeVerify     = "verification_failed"
	errorTypePermission = "no_permission"

	metricOperationDuration = "entitystore_operation_duration_seconds"
	metricStoreErrors       = "entitystore_store_errors_total"
	metricUpdateConflicts   = "entitystore_update_conflicts_total"
	metricCacheHits         = "entitystore_cache_hits_total"
	metricCacheMisses       = "entitystore_cache_misses_total"

	spanNamePrefix     = "entitystore."
	spanAttrOperation  = "operation"
	spanAttrErrorType  = "error_type"
	spanAttrSubject    = "subject"
	spanAttrRecordType = "record_type"
	spanAttrDurationMS = "duration_ms"
)

// logStatementWithDuration logs SPARQL statements with execution time at debug level if a logger is configured.
func (s *Store) logStatementWithDuration(ctx context.Context, statement, action string, duration time.Duration) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgStatementExecuted+action,
			logAttrDurationMS, s.toMilliseconds(duration), logAttrStatement, statement)
		return
	}
	if s.logger != nil {
		s.logger.Debug(logMsgStatementExecuted+action,
			logAttrDurationMS, s.toMilliseconds(duration), logAttrStatement, statement)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical issues at warn level if a logger is configured.
func (s *Store) logWarn(ctx context.Context, message string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, args...)
		return
	}
	if s.logger != nil {
		s.logger.Warn(message, args...)
	}
}

// logError logs error information at error level if a logger is configured.
func (s *Store) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}
	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s *Store) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDurationMetrics records operation duration if the collector is configured,
// preferring the context-aware method when available.
func (s *Store) recordDurationMetrics(ctx context.Context, duration time.Duration, operation, status string) {
	if s.metricsCollector == nil {
		return
	}
	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          status,
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
	}
}

// recordErrorMetrics records error counters if the collector is configured.
func (s *Store) recordErrorMetrics(ctx context.Context, operation, errorType string) {
	if s.metricsCollector == nil {
		return
	}
	labels := map[string]string{
		spanAttrOperation: operation,
		"status":          statusError,
		spanAttrErrorType: errorType,
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricStoreErrors, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricStoreErrors, labels)
	}
}

// recordConflictMetrics records compare-and-swap conflicts if the collector is configured.
func (s *Store) recordConflictMetrics(ctx context.Context, operation string) {
	if s.metricsCollector == nil {
		return
	}
	labels := map[string]string{
		spanAttrOperation: operation,
		"conflict_type":   "modification_timestamp",
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricUpdateConflicts, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricUpdateConflicts, labels)
	}
}

// recordCacheMetrics records cache hit or miss counters if the collector is configured.
func (s *Store) recordCacheMetrics(ctx context.Context, recordType string, hit bool) {
	if s.metricsCollector == nil {
		return
	}
	metric := metricCacheMisses
	if hit {
		metric = metricCacheHits
	}
	labels := map[string]string{spanAttrRecordType: recordType}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
	} else {
		s.metricsCollector.IncrementCounter(metric, labels)
	}
}

// startOperationSpan starts a tracing span for a store operation if the tracing collector is configured.
func (s *Store) startOperationSpan(ctx context.Context, operation string, e *Entity) (context.Context, SpanContext) {
	if s.tracingCollector == nil {
		return ctx, nil
	}
	attrs := map[string]string{
		spanAttrOperation: operation,
	}
	if e != nil {
		attrs[spanAttrSubject] = string(e.Subject())
		attrs[spanAttrRecordType] = e.Schema().TypeName()
	}

	return s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
}

// finishSpanSuccess finishes a span for a successful operation.
func (s *Store) finishSpanSuccess(span SpanContext, duration time.Duration) {
	if s.tracingCollector == nil || span == nil {
		return
	}
	span.SetStatus(statusSuccess)
	span.AddAttribute(spanAttrDurationMS, formatMillis(duration))
	s.tracingCollector.FinishSpan(span, statusSuccess, nil)
}

// finishSpanError finishes a span with error details.
func (s *Store) finishSpanError(span SpanContext, errorType string) {
	if s.tracingCollector == nil || span == nil {
		return
	}
	span.SetStatus(statusError)
	span.AddAttribute(spanAttrErrorType, errorType)
	s.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType})
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
