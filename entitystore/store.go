package entitystore

import (
	"errors"
)

// Operation names a store operation for authorization decisions.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
	OpDelete
	OpLoad
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpLoad:
		return "load"
	default:
		return "unknown"
	}
}

// AuthorizeFunc decides whether the connection's actor may perform an
// operation on an entity. Returning an error joined with ErrNoPermission
// rejects the operation before any statement is sent.
type AuthorizeFunc func(actor Actor, op Operation, e *Entity) error

// Store executes the commit protocol against a Connection. It renders the
// update statements from entity changesets, guards every write with a
// compare-and-swap on the record's modification timestamp, and keeps the
// optional cache coherent.
type Store struct {
	conn             Connection
	cache            Cache
	prefixes         *PrefixMap
	authorize        AuthorizeFunc
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// NewStore creates a Store on an established connection.
func NewStore(conn Connection, options ...Option) (*Store, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	s := &Store{
		conn:     conn,
		prefixes: DefaultPrefixes(),
	}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// WithCache sets the entity cache for the Store. Reads are served from the
// cache unless the context carries the bypass flag; every successful commit
// refreshes or evicts the cached entry.
func WithCache(cache Cache) Option {
	return func(s *Store) error {
		s.cache = cache
		return nil
	}
}

// WithPrefixes sets the prefix map rendered into every statement preamble.
// The defaults (rdf, rdfs, xsd, dcterms) stay registered.
func WithPrefixes(p *PrefixMap) Option {
	return func(s *Store) error {
		if p == nil {
			return errors.Join(ErrInvalidValue, errors.New("nil prefix map supplied"))
		}
		s.prefixes = p

		return nil
	}
}

// WithAuthorization sets the authorization hook consulted before every
// operation. Without it all operations are permitted.
func WithAuthorization(fn AuthorizeFunc) Option {
	return func(s *Store) error {
		s.authorize = fn
		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SPARQL statements with execution timing (development use)
// Info level: Operation outcomes, durations, update conflicts (production-safe)
// Warn level: Non-critical issues like cache refresh failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// The contextual logger will receive log messages with context information
// including automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// The metrics collector will receive performance and operational metrics
// including operation durations, update conflicts, cache hits and store errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store.
// The tracing collector will receive distributed tracing information
// including span creation for load/commit operations and error tracking.
func WithTracing(collector TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}

// Connection exposes the underlying connection, mainly so record packages
// can reach the actor for authorization-sensitive defaults.
func (s *Store) Connection() Connection {
	return s.conn
}

// Prefixes exposes the registered prefix map.
func (s *Store) Prefixes() *PrefixMap {
	return s.prefixes
}

func (s *Store) checkAuthorized(op Operation, e *Entity) error {
	if s.authorize == nil {
		return nil
	}

	return s.authorize(s.conn.Actor(), op, e)
}
