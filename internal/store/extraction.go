package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertFileTx(x execer, f *File) (int64, error) {
	res, err := x.Exec(
		"INSERT INTO files (path, hash, line_count, last_indexed) VALUES (?, ?, ?, ?)",
		f.Path, f.Hash, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

const fileCols = "id, path, hash, line_count, last_indexed"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var lines sql.NullInt64
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &hash, &lines, &indexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LineCount = int(lines.Int64)
	f.LastIndexed = indexed.Time
	return f, nil
}

// FileByPath returns the file stored under path, or nil if there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Fact inserts ---

func insertEventTx(x execer, fileID int64, e *EventHandler) error {
	_, err := x.Exec(
		"INSERT INTO events (file_id, line, trigger_kind, event, indent) VALUES (?, ?, ?, ?, ?)",
		fileID, e.Line, string(e.Trigger), e.Event, e.Indent,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func insertDataKeyTx(x execer, fileID int64, k *DataKeyAccess) error {
	_, err := x.Exec(
		`INSERT INTO data_keys (file_id, line, key, scope, kind, context, mode_read, mode_write)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fileID, k.Line, k.Key, string(k.Scope), string(k.Kind), k.Context, k.Mode.Read, k.Mode.Write,
	)
	if err != nil {
		return fmt.Errorf("insert data key: %w", err)
	}
	return nil
}

func insertCallTx(x execer, fileID int64, c *CallEdge) error {
	_, err := x.Exec(
		"INSERT INTO calls (file_id, line, kind, target, context) VALUES (?, ?, ?, ?, ?)",
		fileID, c.Line, string(c.Kind), c.Target, c.Context,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func insertContainerTx(x execer, fileID int64, c *ScriptContainer) error {
	_, err := x.Exec(
		"INSERT INTO containers (file_id, line, name, type) VALUES (?, ?, ?, ?)",
		fileID, c.Line, c.Name, c.Type,
	)
	if err != nil {
		return fmt.Errorf("insert container: %w", err)
	}
	return nil
}

func insertNoteTx(x execer, fileID int64, n *Note) error {
	_, err := x.Exec(
		"INSERT INTO notes (file_id, line, message) VALUES (?, ?, ?)",
		fileID, n.Line, n.Message,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// --- Fact queries ---
//
// Every query joins files so rows carry their path, and orders by
// (path, line, id) so results follow traversal order.

const eventSelect = `SELECT f.path, e.line, e.trigger_kind, e.event, e.indent
	FROM events e JOIN files f ON f.id = e.file_id`

func (s *Store) queryEvents(where string, args ...any) ([]EventHandler, error) {
	rows, err := s.db.Query(eventSelect+" "+where+" ORDER BY f.path, e.line, e.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventHandler
	for rows.Next() {
		var e EventHandler
		var trig string
		if err := rows.Scan(&e.File, &e.Line, &trig, &e.Event, &e.Indent); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Trigger = TriggerKind(trig)
		out = append(out, e)
	}
	return out, rows.Err()
}

const dataKeySelect = `SELECT f.path, d.line, d.key, d.scope, d.kind, d.context, d.mode_read, d.mode_write
	FROM data_keys d JOIN files f ON f.id = d.file_id`

func (s *Store) queryDataKeys(where string, args ...any) ([]DataKeyAccess, error) {
	rows, err := s.db.Query(dataKeySelect+" "+where+" ORDER BY f.path, d.line, d.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DataKeyAccess
	for rows.Next() {
		var k DataKeyAccess
		var scope, kind string
		var ctx sql.NullString
		if err := rows.Scan(&k.File, &k.Line, &k.Key, &scope, &kind, &ctx, &k.Mode.Read, &k.Mode.Write); err != nil {
			return nil, fmt.Errorf("scan data key: %w", err)
		}
		k.Scope = Scope(scope)
		k.Kind = AccessKind(kind)
		k.Context = ctx.String
		out = append(out, k)
	}
	return out, rows.Err()
}

const callSelect = `SELECT f.path, c.line, c.kind, c.target, c.context
	FROM calls c JOIN files f ON f.id = c.file_id`

func (s *Store) queryCalls(where string, args ...any) ([]CallEdge, error) {
	rows, err := s.db.Query(callSelect+" "+where+" ORDER BY f.path, c.line, c.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CallEdge
	for rows.Next() {
		var c CallEdge
		var kind string
		var ctx sql.NullString
		if err := rows.Scan(&c.File, &c.Line, &kind, &c.Target, &ctx); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Kind = CallKind(kind)
		c.Context = ctx.String
		out = append(out, c)
	}
	return out, rows.Err()
}

const containerSelect = `SELECT f.path, c.line, c.name, c.type
	FROM containers c JOIN files f ON f.id = c.file_id`

func (s *Store) queryContainers(where string, args ...any) ([]ScriptContainer, error) {
	rows, err := s.db.Query(containerSelect+" "+where+" ORDER BY f.path, c.line, c.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScriptContainer
	for rows.Next() {
		var c ScriptContainer
		if err := rows.Scan(&c.File, &c.Line, &c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const noteSelect = `SELECT f.path, n.line, n.message
	FROM notes n JOIN files f ON f.id = n.file_id`

func (s *Store) queryNotes(where string, args ...any) ([]Note, error) {
	rows, err := s.db.Query(noteSelect+" "+where+" ORDER BY f.path, n.id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		var n Note
		var line sql.NullInt64
		if err := rows.Scan(&n.File, &line, &n.Message); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Line = int(line.Int64)
		out = append(out, n)
	}
	return out, rows.Err()
}

// FactsByFile reloads the facts stored for one file, in extraction order.
func (s *Store) FactsByFile(fileID int64) (Facts, error) {
	var f Facts
	var err error
	where := "WHERE f.id = ?"
	if f.Events, err = s.queryEvents(where, fileID); err != nil {
		return Facts{}, fmt.Errorf("facts by file: %w", err)
	}
	if f.DataKeys, err = s.queryDataKeys(where, fileID); err != nil {
		return Facts{}, fmt.Errorf("facts by file: %w", err)
	}
	if f.Calls, err = s.queryCalls(where, fileID); err != nil {
		return Facts{}, fmt.Errorf("facts by file: %w", err)
	}
	if f.Containers, err = s.queryContainers(where, fileID); err != nil {
		return Facts{}, fmt.Errorf("facts by file: %w", err)
	}
	if f.Notes, err = s.queryNotes(where, fileID); err != nil {
		return Facts{}, fmt.Errorf("facts by file: %w", err)
	}
	return f, nil
}

// EventsByName returns the handlers registered for an exact event name.
func (s *Store) EventsByName(name string) ([]EventHandler, error) {
	out, err := s.queryEvents("WHERE e.event = ?", name)
	if err != nil {
		return nil, fmt.Errorf("events by name: %w", err)
	}
	return out, nil
}

// AccessesByKey returns every access to a canonical key.
func (s *Store) AccessesByKey(key string) ([]DataKeyAccess, error) {
	out, err := s.queryDataKeys("WHERE d.key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("accesses by key: %w", err)
	}
	return out, nil
}

// CallsByTarget returns every call edge pointing at target.
func (s *Store) CallsByTarget(target string) ([]CallEdge, error) {
	out, err := s.queryCalls("WHERE c.target = ?", target)
	if err != nil {
		return nil, fmt.Errorf("calls by target: %w", err)
	}
	return out, nil
}

// CallsByFile returns every call edge made from path.
func (s *Store) CallsByFile(path string) ([]CallEdge, error) {
	out, err := s.queryCalls("WHERE f.path = ?", path)
	if err != nil {
		return nil, fmt.Errorf("calls by file: %w", err)
	}
	return out, nil
}

// ContainersByName returns the containers declared under name.
func (s *Store) ContainersByName(name string) ([]ScriptContainer, error) {
	out, err := s.queryContainers("WHERE c.name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("containers by name: %w", err)
	}
	return out, nil
}

// Counts holds row totals across the fact tables.
type Counts struct {
	Files      int `json:"files"`
	Events     int `json:"events"`
	DataKeys   int `json:"dataKeys"`
	Calls      int `json:"calls"`
	Containers int `json:"containers"`
	Notes      int `json:"notes"`
	Warnings   int `json:"warnings"`
}

// Counts returns the number of rows in each table.
func (s *Store) Counts() (Counts, error) {
	var c Counts
	for _, t := range []struct {
		table string
		dst   *int
	}{
		{"files", &c.Files},
		{"events", &c.Events},
		{"data_keys", &c.DataKeys},
		{"calls", &c.Calls},
		{"containers", &c.Containers},
		{"notes", &c.Notes},
		{"warnings", &c.Warnings},
	} {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + t.table).Scan(t.dst); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

// --- Metadata ---

// GetMetadata returns the value stored under key, or "" if unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v.String, nil
}

// SetMetadata upserts a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
