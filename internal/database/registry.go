package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var connSeq atomic.Uint64

// Conn is an open link to one namespace.  Every Conn gets a process-unique
// ID, which is what bound models are keyed by.
type Conn struct {
	id        uint64
	tenant    string
	namespace string
	db        *sql.DB
}

// NewConn wraps db as the handle for tenant's namespace.  tenant is empty for
// the default (system) connection.
func NewConn(tenant, namespace string, db *sql.DB) *Conn {
	return &Conn{id: connSeq.Add(1), tenant: tenant, namespace: namespace, db: db}
}

func (c *Conn) ID() uint64        { return c.id }
func (c *Conn) Tenant() string    { return c.tenant }
func (c *Conn) Namespace() string { return c.namespace }
func (c *Conn) DB() *sql.DB       { return c.db }

// IsDefault reports whether c is the system connection.
func (c *Conn) IsDefault() bool { return c.tenant == "" }

// Opener opens a database handle for namespace.  It must return a live
// handle (pinged) or an error.
type Opener func(ctx context.Context, namespace string) (*sql.DB, error)

// Registry hands out one shared Conn per tenant, opening it on first use.
// Concurrent first requests for the same tenant share a single open.
type Registry struct {
	def     *Conn
	prefix  string
	open    Opener
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	conns  map[string]*Conn
	gens   map[string]uint64 // bumped by Close; an open started under an older value is discarded
	closed bool
	group  singleflight.Group
}

// NewRegistry builds a registry around the default connection.  timeout
// bounds each open; zero means 5s.
func NewRegistry(def *Conn, prefix string, open Opener, timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		def:     def,
		prefix:  prefix,
		open:    open,
		timeout: timeout,
		log:     logger,
		conns:   make(map[string]*Conn),
		gens:    make(map[string]uint64),
	}
}

// Default returns the system connection.
func (r *Registry) Default() *Conn { return r.def }

// Prefix returns the tenant database name prefix.
func (r *Registry) Prefix() string { return r.prefix }

// Get returns the connection for tenant key, or the default connection when
// key is empty.
func (r *Registry) Get(ctx context.Context, key string) (*Conn, error) {
	if key == "" {
		return r.def, nil
	}
	if c, err := r.lookup(key); c != nil || err != nil {
		return c, err
	}

	ch := r.group.DoChan(key, func() (any, error) {
		if c, err := r.lookup(key); c != nil || err != nil {
			return c, err
		}
		ns := Namespace(r.prefix, key)
		r.mu.RLock()
		gen := r.gens[key]
		r.mu.RUnlock()
		// the open is shared, so one caller giving up must not fail the rest
		octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		db, err := r.open(octx, ns)
		if err != nil {
			r.log.Warn("tenant connection failed", zap.String("tenant", key), zap.String("namespace", ns), zap.Error(err))
			return nil, &ConnectionError{Tenant: key, Namespace: ns, Err: err}
		}
		c := NewConn(key, ns, db)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = db.Close()
			return nil, &ConnectionError{Tenant: key, Namespace: ns, Err: ErrClosed}
		}
		if r.gens[key] != gen {
			r.mu.Unlock()
			_ = db.Close()
			r.log.Info("tenant closed while opening, connection discarded", zap.String("tenant", key))
			return nil, &ConnectionError{Tenant: key, Namespace: ns, Err: ErrTenantClosed}
		}
		r.conns[key] = c
		r.mu.Unlock()

		r.log.Info("tenant connection opened",
			zap.String("tenant", key), zap.String("namespace", ns),
			zap.Uint64("conn_id", c.id), zap.Duration("took", time.Since(start)))
		return c, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Conn), nil
	case <-ctx.Done():
		return nil, &ConnectionError{Tenant: key, Namespace: Namespace(r.prefix, key), Err: ctx.Err()}
	}
}

func (r *Registry) lookup(key string) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, &ConnectionError{Tenant: key, Namespace: Namespace(r.prefix, key), Err: ErrClosed}
	}
	return r.conns[key], nil
}

// Close closes and forgets the tenant's connection.  It returns the closed
// handle, or nil when none was open.  An open still in flight for key is
// discarded when it completes.
func (r *Registry) Close(key string) (*Conn, error) {
	r.mu.Lock()
	c, ok := r.conns[key]
	delete(r.conns, key)
	r.gens[key]++
	r.mu.Unlock()
	// later Gets must not join an open that started before the close
	r.group.Forget(key)
	if !ok {
		return nil, nil
	}
	r.log.Info("tenant connection closed", zap.String("tenant", key), zap.Uint64("conn_id", c.id))
	return c, c.db.Close()
}

// CloseAll closes every tenant connection and the default one.  Get fails
// afterwards.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.closed = true
	r.mu.Unlock()

	var first error
	for _, c := range conns {
		if err := c.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	if r.def != nil && r.def.db != nil {
		if err := r.def.db.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Tenants lists the keys with an open connection, sorted.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.conns))
	for k := range r.conns {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
