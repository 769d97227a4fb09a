// Copyright 2026 The Swarmctl Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/auraswarm/swarmctl/lib/clock"
	"github.com/auraswarm/swarmctl/lib/codec"
	"github.com/auraswarm/swarmctl/lib/ids"
	"github.com/auraswarm/swarmctl/lib/sqlitepool"
)

// schema realizes the five logical key spaces of §3 as five blob
// key/value tables. WITHOUT ROWID keeps the primary key as the only
// storage, matching a pure key-value store's layout rather than
// SQLite's default rowid-plus-index shape.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS agents_by_status (
	key BLOB PRIMARY KEY
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS sessions (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS sessions_by_agent (
	key BLOB PRIMARY KEY
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS users (
	key   BLOB PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// Store is the Registry: a SQLite-backed embedded key-value store with
// the five column families of §3. Store is safe for concurrent use;
// SQLite's own write-serialization plus the pool's connection
// borrowing handle mutual exclusion at the storage layer. Per-agent
// read-modify-write serialization above the storage layer is the
// caller's (Control Core's) responsibility — see lib/agentlock.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Config holds the parameters for opening a Registry store.
type Config struct {
	// Path is the SQLite database file path. Use ":memory:" with
	// PoolSize 1 for tests.
	Path string

	// PoolSize is the connection pool size. Defaults per sqlitepool.
	PoolSize int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Open opens (creating if absent) the Registry's backing database and
// ensures the schema exists.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("registry: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: opening store: %w", err)
	}

	return &Store{pool: pool, clock: cfg.Clock, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// PutAgent upserts an Agent record. If a prior record existed with a
// different status, the old agents_by_status entry is removed and the
// new one written in the same atomic batch (§4.1).
func (s *Store) PutAgent(ctx context.Context, agent Agent) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storageErr("put_agent: take connection", err)
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageErr("put_agent: begin transaction", err)
	}
	defer endTx(&err)

	key := agentKey(agent.OwnerID.Bytes(), agent.AgentID.Bytes())

	prior, ok, err := getAgentByKey(conn, key)
	if err != nil {
		return storageErr("put_agent: read prior", err)
	}
	if ok && prior.Status != agent.Status {
		oldIndexKey := agentStatusKey(prior.Status, agent.OwnerID.Bytes(), agent.AgentID.Bytes())
		if err = execute(conn, "DELETE FROM agents_by_status WHERE key = ?", oldIndexKey); err != nil {
			return storageErr("put_agent: delete old index", err)
		}
	}

	value, err := codec.Marshal(agent)
	if err != nil {
		return fmt.Errorf("registry: encoding agent: %w", err)
	}

	if err = execute(conn, "INSERT INTO agents(key, value) VALUES (?, ?) "+
		"ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value); err != nil {
		return storageErr("put_agent: upsert", err)
	}

	newIndexKey := agentStatusKey(agent.Status, agent.OwnerID.Bytes(), agent.AgentID.Bytes())
	if err = execute(conn, "INSERT OR IGNORE INTO agents_by_status(key) VALUES (?)", newIndexKey); err != nil {
		return storageErr("put_agent: write index", err)
	}

	return nil
}

// GetAgent retrieves an Agent by AgentID alone. Per §4.1 this is an
// O(n) scan over the agents table today (the key layout is
// owner_id‖agent_id, with no secondary agent_id→owner_id index);
// acceptable because n is bounded in the low thousands per process.
// Returns ErrNotFound if no agent with this AgentID exists.
func (s *Store) GetAgent(ctx context.Context, agentID ids.AgentID) (Agent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Agent{}, storageErr("get_agent: take connection", err)
	}
	defer s.pool.Put(conn)

	var found *Agent
	scanErr := sqlitex.Execute(conn, "SELECT key, value FROM agents", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key := columnBytes(stmt, 0)
			if len(key) < len(agentID.Bytes()) {
				return nil
			}
			suffix := key[len(key)-len(agentID.Bytes()):]
			if !bytes.Equal(suffix, agentID.Bytes()) {
				return nil
			}
			var agent Agent
			value := columnBytes(stmt, 1)
			if decErr := codec.Unmarshal(value, &agent); decErr != nil {
				return fmt.Errorf("decoding agent: %w", decErr)
			}
			found = &agent
			return nil
		},
	})
	if scanErr != nil {
		return Agent{}, storageErr("get_agent: scan", scanErr)
	}
	if found == nil {
		return Agent{}, ErrNotFound
	}
	return *found, nil
}

// ListAgentsByOwner returns every Agent owned by ownerID, in byte order
// of AgentID (the natural order of the agents table's key).
func (s *Store) ListAgentsByOwner(ctx context.Context, ownerID ids.OwnerID) ([]Agent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("list_agents_by_owner: take connection", err)
	}
	defer s.pool.Put(conn)

	var agents []Agent
	scanErr := scanPrefix(conn, "agents", ownerID.Bytes(), func(_, value []byte) error {
		var agent Agent
		if decErr := codec.Unmarshal(value, &agent); decErr != nil {
			return fmt.Errorf("decoding agent: %w", decErr)
		}
		agents = append(agents, agent)
		return nil
	})
	if scanErr != nil {
		return nil, storageErr("list_agents_by_owner: scan", scanErr)
	}
	return agents, nil
}

// CountAgentsByOwner equals len(ListAgentsByOwner(ownerID)), computed
// without materializing decoded records.
func (s *Store) CountAgentsByOwner(ctx context.Context, ownerID ids.OwnerID) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, storageErr("count_agents_by_owner: take connection", err)
	}
	defer s.pool.Put(conn)

	count := 0
	scanErr := scanPrefix(conn, "agents", ownerID.Bytes(), func(_, _ []byte) error {
		count++
		return nil
	})
	if scanErr != nil {
		return 0, storageErr("count_agents_by_owner: scan", scanErr)
	}
	return count, nil
}

// UpdateAgentStatus performs the read-modify-write of §4.1: loads the
// agent, sets status and updated_at, and maintains the
// agents_by_status index atomically. Returns ErrNotFound if no agent
// with this AgentID exists.
func (s *Store) UpdateAgentStatus(ctx context.Context, agentID ids.AgentID, newStatus AgentStatus) (Agent, error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return Agent{}, err
	}
	agent.Status = newStatus
	agent.UpdatedAt = s.clock.Now()
	if err := s.PutAgent(ctx, agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// DeleteAgent atomically removes the agent from both agents and
// agents_by_status. The caller is responsible for session cleanup
// (§4.1 — the Registry does not cascade).
func (s *Store) DeleteAgent(ctx context.Context, agentID ids.AgentID) (err error) {
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storageErr("delete_agent: take connection", err)
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageErr("delete_agent: begin transaction", err)
	}
	defer endTx(&err)

	key := agentKey(agent.OwnerID.Bytes(), agent.AgentID.Bytes())
	if err = execute(conn, "DELETE FROM agents WHERE key = ?", key); err != nil {
		return storageErr("delete_agent: delete record", err)
	}
	indexKey := agentStatusKey(agent.Status, agent.OwnerID.Bytes(), agent.AgentID.Bytes())
	if err = execute(conn, "DELETE FROM agents_by_status WHERE key = ?", indexKey); err != nil {
		return storageErr("delete_agent: delete index", err)
	}
	return nil
}

// ListAllAgents performs a full scan, for the idle detector and admin
// use.
func (s *Store) ListAllAgents(ctx context.Context) ([]Agent, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("list_all_agents: take connection", err)
	}
	defer s.pool.Put(conn)

	var agents []Agent
	scanErr := sqlitex.Execute(conn, "SELECT value FROM agents", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var agent Agent
			if decErr := codec.Unmarshal(columnBytes(stmt, 0), &agent); decErr != nil {
				return fmt.Errorf("decoding agent: %w", decErr)
			}
			agents = append(agents, agent)
			return nil
		},
	})
	if scanErr != nil {
		return nil, storageErr("list_all_agents: scan", scanErr)
	}
	return agents, nil
}

// PutSession upserts a Session record and maintains the
// sessions_by_agent index.
func (s *Store) PutSession(ctx context.Context, session Session) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storageErr("put_session: take connection", err)
	}
	defer s.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return storageErr("put_session: begin transaction", err)
	}
	defer endTx(&err)

	value, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("registry: encoding session: %w", err)
	}

	if err = execute(conn, "INSERT INTO sessions(key, value) VALUES (?, ?) "+
		"ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		session.SessionID.Bytes(), value); err != nil {
		return storageErr("put_session: upsert", err)
	}

	indexKey := sessionsByAgentKey(session.AgentID.Bytes(), session.SessionID.Bytes())
	if err = execute(conn, "INSERT OR IGNORE INTO sessions_by_agent(key) VALUES (?)", indexKey); err != nil {
		return storageErr("put_session: write index", err)
	}
	return nil
}

// GetSession retrieves a Session by SessionID. Returns ErrNotFound if
// absent.
func (s *Store) GetSession(ctx context.Context, sessionID ids.SessionID) (Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Session{}, storageErr("get_session: take connection", err)
	}
	defer s.pool.Put(conn)

	var value []byte
	scanErr := sqlitex.Execute(conn, "SELECT value FROM sessions WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{sessionID.Bytes()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBytes(stmt, 0)
			return nil
		},
	})
	if scanErr != nil {
		return Session{}, storageErr("get_session: lookup", scanErr)
	}
	if value == nil {
		return Session{}, ErrNotFound
	}

	var session Session
	if decErr := codec.Unmarshal(value, &session); decErr != nil {
		return Session{}, fmt.Errorf("registry: decoding session: %w", decErr)
	}
	return session, nil
}

// UpdateSessionStatus performs the session read-modify-write, analogous
// to UpdateAgentStatus.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID ids.SessionID, newStatus SessionStatus) (Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	session.Status = newStatus
	if newStatus == SessionStatusClosed {
		now := s.clock.Now()
		session.ClosedAt = &now
	}
	if err := s.PutSession(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// ListSessionsByAgent returns all sessions for an agent via the
// sessions_by_agent prefix index.
func (s *Store) ListSessionsByAgent(ctx context.Context, agentID ids.AgentID) ([]Session, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storageErr("list_sessions_by_agent: take connection", err)
	}
	defer s.pool.Put(conn)

	var sessionIDs [][]byte
	scanErr := scanKeyPrefix(conn, "sessions_by_agent", agentID.Bytes(), func(key []byte) error {
		sessionIDKey := make([]byte, len(key)-len(agentID.Bytes()))
		copy(sessionIDKey, key[len(agentID.Bytes()):])
		sessionIDs = append(sessionIDs, sessionIDKey)
		return nil
	})
	if scanErr != nil {
		return nil, storageErr("list_sessions_by_agent: scan index", scanErr)
	}

	sessions := make([]Session, 0, len(sessionIDs))
	for _, raw := range sessionIDs {
		var value []byte
		lookupErr := sqlitex.Execute(conn, "SELECT value FROM sessions WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{raw},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = columnBytes(stmt, 0)
				return nil
			},
		})
		if lookupErr != nil {
			return nil, storageErr("list_sessions_by_agent: lookup session", lookupErr)
		}
		if value == nil {
			// Index entry outlived its session record; skip rather than fail
			// the whole listing.
			continue
		}
		var session Session
		if decErr := codec.Unmarshal(value, &session); decErr != nil {
			return nil, fmt.Errorf("registry: decoding session: %w", decErr)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// PutUser upserts the cached user record for an owner.
func (s *Store) PutUser(ctx context.Context, user UserCacheRecord) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return storageErr("put_user: take connection", err)
	}
	defer s.pool.Put(conn)

	value, encErr := codec.Marshal(user)
	if encErr != nil {
		return fmt.Errorf("registry: encoding user cache record: %w", encErr)
	}
	if execErr := execute(conn, "INSERT INTO users(key, value) VALUES (?, ?) "+
		"ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		user.OwnerID.Bytes(), value); execErr != nil {
		return storageErr("put_user: upsert", execErr)
	}
	return nil
}

// GetUser retrieves the cached user record for an owner, if present.
func (s *Store) GetUser(ctx context.Context, ownerID ids.OwnerID) (UserCacheRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return UserCacheRecord{}, storageErr("get_user: take connection", err)
	}
	defer s.pool.Put(conn)

	var value []byte
	scanErr := sqlitex.Execute(conn, "SELECT value FROM users WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{ownerID.Bytes()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBytes(stmt, 0)
			return nil
		},
	})
	if scanErr != nil {
		return UserCacheRecord{}, storageErr("get_user: lookup", scanErr)
	}
	if value == nil {
		return UserCacheRecord{}, ErrNotFound
	}
	var user UserCacheRecord
	if decErr := codec.Unmarshal(value, &user); decErr != nil {
		return UserCacheRecord{}, fmt.Errorf("registry: decoding user cache record: %w", decErr)
	}
	return user, nil
}

// getAgentByKey reads a single agents row by its exact key, without
// the O(n) AgentID scan GetAgent performs. Used internally by PutAgent
// to find the prior record's status.
func getAgentByKey(conn *sqlite.Conn, key []byte) (Agent, bool, error) {
	var value []byte
	err := sqlitex.Execute(conn, "SELECT value FROM agents WHERE key = ?", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = columnBytes(stmt, 0)
			return nil
		},
	})
	if err != nil {
		return Agent{}, false, err
	}
	if value == nil {
		return Agent{}, false, nil
	}
	var agent Agent
	if err := codec.Unmarshal(value, &agent); err != nil {
		return Agent{}, false, fmt.Errorf("decoding agent: %w", err)
	}
	return agent, true, nil
}

// scanPrefix iterates every row of table whose key has the given
// prefix, in key byte order, calling fn(key, value) for each.
func scanPrefix(conn *sqlite.Conn, table string, prefix []byte, fn func(key, value []byte) error) error {
	upper, bounded := prefixUpperBound(prefix)

	query := fmt.Sprintf("SELECT key, value FROM %s WHERE key >= ? ORDER BY key", table)
	args := []any{prefix}
	if bounded {
		query = fmt.Sprintf("SELECT key, value FROM %s WHERE key >= ? AND key < ? ORDER BY key", table)
		args = []any{prefix, upper}
	}

	var innerErr error
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key := columnBytes(stmt, 0)
			var value []byte
			if stmt.ColumnCount() > 1 {
				value = columnBytes(stmt, 1)
			}
			if innerErr = fn(key, value); innerErr != nil {
				return innerErr
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	return innerErr
}

// scanKeyPrefix is scanPrefix for key-only index tables (no value column).
func scanKeyPrefix(conn *sqlite.Conn, table string, prefix []byte, fn func(key []byte) error) error {
	upper, bounded := prefixUpperBound(prefix)

	query := fmt.Sprintf("SELECT key FROM %s WHERE key >= ? ORDER BY key", table)
	args := []any{prefix}
	if bounded {
		query = fmt.Sprintf("SELECT key FROM %s WHERE key >= ? AND key < ? ORDER BY key", table)
		args = []any{prefix, upper}
	}

	var innerErr error
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if innerErr = fn(columnBytes(stmt, 0)); innerErr != nil {
				return innerErr
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	return innerErr
}

// execute runs a mutating statement with positional blob/text args.
func execute(conn *sqlite.Conn, query string, args ...any) error {
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
}

// columnBytes copies a BLOB column's contents into a freshly allocated
// slice. sqlite's ColumnBytes writes into a caller-provided buffer, so
// callers must size it first via ColumnLen.
func columnBytes(stmt *sqlite.Stmt, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}
