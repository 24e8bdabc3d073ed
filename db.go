package ormion

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DBConfig configures the connection pool settings.
type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c DBConfig) apply(db *sql.DB) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	if c.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	}
}

// DB is a database handle bound to a dialect. It is safe for concurrent use.
type DB struct {
	resolver *DBResolver
	dialect  *Dialect
	logger   *slog.Logger
	metrics  *Metrics
	stmts    *StatementCache
}

// Option configures a DB.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	metrics    *Metrics
	replicas   []*sql.DB
	lb         LoadBalancer
	pool       *DBConfig
	stmts      *StatementCache
}

// WithLogger sets the logger. Statements are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the statement metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics shares a Metrics instance between handles.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReplicas routes reads to the given replicas.
func WithReplicas(lb LoadBalancer, replicas ...*sql.DB) Option {
	return func(o *options) {
		o.lb = lb
		o.replicas = replicas
	}
}

// WithPool applies pool settings to every connection pool of the handle.
func WithPool(cfg DBConfig) Option {
	return func(o *options) { o.pool = &cfg }
}

// WithStatementCache prepares statements run outside transactions on the
// primary and keeps up to capacity of them for reuse.
func WithStatementCache(capacity int) Option {
	return func(o *options) { o.stmts = NewStatementCache(capacity) }
}

// Open opens a database with a registered driver and checks the connection.
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*DB, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	db, err := Wrap(sqlDB, dialect, opts...)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, wrapQueryError("PING", "", nil, err)
	}

	return db, nil
}

// Wrap binds an existing pool to a dialect.
func Wrap(sqlDB *sql.DB, dialect *Dialect, opts ...Option) (*DB, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("%w: database handle", ErrNilPointer)
	}
	if dialect == nil {
		return nil, fmt.Errorf("%w: dialect", ErrNilPointer)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	if o.registerer != nil {
		if err := o.metrics.Register(o.registerer); err != nil {
			return nil, err
		}
	}

	db := &DB{
		resolver: NewDBResolver(sqlDB, o.lb, o.replicas...),
		dialect:  dialect,
		logger:   o.logger,
		metrics:  o.metrics,
		stmts:    o.stmts,
	}

	if o.pool != nil {
		for _, p := range db.resolver.all() {
			o.pool.apply(p)
		}
	}

	return db, nil
}

// Close closes the cached statements, the primary and every replica.
func (db *DB) Close() error {
	if db.stmts != nil {
		db.stmts.Clear()
	}

	var first error
	for _, p := range db.resolver.all() {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dialect returns the dialect of the handle.
func (db *DB) Dialect() *Dialect { return db.dialect }

// Metrics returns the statement metrics of the handle.
func (db *DB) Metrics() *Metrics { return db.metrics }

// Logger returns the logger of the handle.
func (db *DB) Logger() *slog.Logger { return db.logger }

// SQL returns the primary pool.
func (db *DB) SQL() *sql.DB { return db.resolver.Primary() }

// Exec runs a statement on the primary. Placeholders are written as ?.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.writer().exec(ctx, operationOf(query), query, args...)
}

// Query runs a query on a replica, or the primary when there are none, and
// buffers its rows. Placeholders are written as ?.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	return db.reader().query(ctx, operationOf(query), query, args...)
}

func (db *DB) reader() session {
	if !db.resolver.HasReplicas() {
		return db.writer()
	}
	return session{ex: db.resolver.Replica(), db: db}
}

func (db *DB) writer() session {
	return session{ex: db.resolver.Primary(), db: db, stmts: db.stmts}
}

// StatementCache returns the statement cache, or nil without one.
func (db *DB) StatementCache() *StatementCache { return db.stmts }

// executor is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// session runs statements on one executor with logging, metrics, placeholder
// rebinding and error translation. With stmts set, statements are prepared
// once on the primary and reused.
type session struct {
	ex    executor
	db    *DB
	stmts *StatementCache
}

func (s session) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	query = s.db.dialect.Rebind(query)
	start := time.Now()

	var res sql.Result
	var err error
	if s.stmts != nil {
		var stmt *sql.Stmt
		var release func()
		if stmt, release, err = s.stmts.prepare(ctx, s.db.resolver.Primary(), query); err == nil {
			res, err = stmt.ExecContext(ctx, args...)
			release()
		}
	} else {
		res, err = s.ex.ExecContext(ctx, query, args...)
	}
	s.done(ctx, op, query, args, start, err)
	if err != nil {
		return nil, wrapQueryError(op, query, args, err)
	}
	return res, nil
}

func (s session) query(ctx context.Context, op, query string, args ...any) (*Result, error) {
	query = s.db.dialect.Rebind(query)
	start := time.Now()

	var rows *sql.Rows
	var err error
	if s.stmts != nil {
		var stmt *sql.Stmt
		var release func()
		if stmt, release, err = s.stmts.prepare(ctx, s.db.resolver.Primary(), query); err == nil {
			defer release()
			rows, err = stmt.QueryContext(ctx, args...)
		}
	} else {
		rows, err = s.ex.QueryContext(ctx, query, args...)
	}
	if err == nil {
		var res *Result
		res, err = readResult(rows)
		if err == nil {
			s.done(ctx, op, query, args, start, nil)
			return res, nil
		}
	}

	s.done(ctx, op, query, args, start, err)
	return nil, wrapQueryError(op, query, args, err)
}

func (s session) done(ctx context.Context, op, query string, args []any, start time.Time, err error) {
	s.db.metrics.observe(op, start, err)

	if err != nil {
		s.db.logger.DebugContext(ctx, "statement failed",
			"operation", op, "query", query, "args", len(args),
			"duration", time.Since(start), "error", err)
		return
	}
	s.db.logger.DebugContext(ctx, "statement",
		"operation", op, "query", query, "args", len(args),
		"duration", time.Since(start))
}

// operationOf labels a hand-written statement by its leading keyword.
func operationOf(query string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch w := strings.ToUpper(word); w {
	case "SELECT", "WITH":
		return "SELECT"
	case "INSERT", "UPDATE", "DELETE":
		return w
	default:
		return "EXEC"
	}
}
