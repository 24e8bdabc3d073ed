package ormion

import (
	"container/list"
	"context"
	"database/sql"
	"sync"
)

// StatementCache is an LRU cache of statements prepared on the primary pool.
// Statements evicted while in use are closed once their last user releases
// them.
type StatementCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*cachedStmt
	lru      *list.List
}

type cachedStmt struct {
	stmt    *sql.Stmt
	query   string
	element *list.Element
	users   int
	evicted bool
}

// NewStatementCache returns a cache holding at most capacity statements. A
// capacity below one defaults to 100.
func NewStatementCache(capacity int) *StatementCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &StatementCache{
		capacity: capacity,
		items:    make(map[string]*cachedStmt),
		lru:      list.New(),
	}
}

// prepare returns the cached statement for query, preparing it on p when
// missing. The caller must call release when done with the statement.
func (c *StatementCache) prepare(ctx context.Context, p *sql.DB, query string) (*sql.Stmt, func(), error) {
	if stmt, release := c.get(query); stmt != nil {
		return stmt, release, nil
	}

	prepared, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have prepared the same query meanwhile
	if e, ok := c.items[query]; ok {
		prepared.Close()
		return c.acquire(e)
	}
	return c.acquire(c.put(query, prepared))
}

func (c *StatementCache) get(query string) (*sql.Stmt, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[query]
	if !ok {
		return nil, nil
	}
	stmt, release, _ := c.acquire(e)
	return stmt, release
}

// acquire assumes the lock is held.
func (c *StatementCache) acquire(e *cachedStmt) (*sql.Stmt, func(), error) {
	c.lru.MoveToFront(e.element)
	e.users++
	return e.stmt, func() { c.release(e) }, nil
}

// put assumes the lock is held.
func (c *StatementCache) put(query string, stmt *sql.Stmt) *cachedStmt {
	if len(c.items) >= c.capacity {
		if back := c.lru.Back(); back != nil {
			c.evict(back.Value.(*cachedStmt))
		}
	}

	e := &cachedStmt{stmt: stmt, query: query}
	e.element = c.lru.PushFront(e)
	c.items[query] = e
	return e
}

// evict assumes the lock is held.
func (c *StatementCache) evict(e *cachedStmt) {
	c.lru.Remove(e.element)
	delete(c.items, e.query)
	e.evicted = true
	if e.users == 0 {
		e.stmt.Close()
	}
}

func (c *StatementCache) release(e *cachedStmt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.users--
	if e.evicted && e.users == 0 {
		e.stmt.Close()
	}
}

// Clear closes and drops every statement not in use. Statements in use are
// closed on release.
func (c *StatementCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.items {
		e.evicted = true
		if e.users == 0 {
			e.stmt.Close()
		}
	}
	c.items = make(map[string]*cachedStmt)
	c.lru.Init()
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
