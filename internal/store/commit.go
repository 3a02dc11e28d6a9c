package store

import (
	"database/sql"
	"fmt"
)

// CommitFacts replaces everything stored for f.Path with facts, within a
// single transaction. Any previous file row and its facts are deleted
// first, so a re-committed file never carries stale rows. f.ID is set to
// the new row id.
//
// Insert order follows extraction order:
//  1. File row
//  2. Events
//  3. Data keys
//  4. Calls
//  5. Containers
//  6. Notes
func (s *Store) CommitFacts(f *File, facts Facts) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit facts: begin: %w", err)
	}
	defer tx.Rollback()

	var oldID int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&oldID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("commit facts: lookup %s: %w", f.Path, err)
	default:
		if err := deleteFileDataTx(tx, oldID); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}

	fileID, err := insertFileTx(tx, f)
	if err != nil {
		return fmt.Errorf("commit facts: %s: %w", f.Path, err)
	}

	for i := range facts.Events {
		if err := insertEventTx(tx, fileID, &facts.Events[i]); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}
	for i := range facts.DataKeys {
		if err := insertDataKeyTx(tx, fileID, &facts.DataKeys[i]); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}
	for i := range facts.Calls {
		if err := insertCallTx(tx, fileID, &facts.Calls[i]); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}
	for i := range facts.Containers {
		if err := insertContainerTx(tx, fileID, &facts.Containers[i]); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}
	for i := range facts.Notes {
		if err := insertNoteTx(tx, fileID, &facts.Notes[i]); err != nil {
			return fmt.Errorf("commit facts: %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit facts: %w", err)
	}
	return nil
}

// PruneFiles deletes every stored file whose path is not in keep. It
// returns the number of files removed.
func (s *Store) PruneFiles(keep []string) (int, error) {
	files, err := s.Files()
	if err != nil {
		return 0, fmt.Errorf("prune files: %w", err)
	}
	live := make(map[string]bool, len(keep))
	for _, p := range keep {
		live[p] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("prune files: begin: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, f := range files {
		if live[f.Path] {
			continue
		}
		if err := deleteFileDataTx(tx, f.ID); err != nil {
			return 0, fmt.Errorf("prune files: %s: %w", f.Path, err)
		}
		removed++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune files: %w", err)
	}
	return removed, nil
}

// ReplaceWarnings swaps the stored warning list for ws, preserving order.
func (s *Store) ReplaceWarnings(ws []Warning) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace warnings: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM warnings"); err != nil {
		return fmt.Errorf("replace warnings: clear: %w", err)
	}
	for _, w := range ws {
		_, err := tx.Exec(
			"INSERT INTO warnings (kind, severity, message, count, examples, reason) VALUES (?, ?, ?, ?, ?, ?)",
			w.Kind, string(w.Severity), w.Message, w.Count, marshalStrings(w.Examples), w.Reason,
		)
		if err != nil {
			return fmt.Errorf("replace warnings: insert %s: %w", w.Kind, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace warnings: %w", err)
	}
	return nil
}

// Warnings returns the stored warnings in the order they were produced.
func (s *Store) Warnings() ([]Warning, error) {
	rows, err := s.db.Query("SELECT kind, severity, message, count, examples, reason FROM warnings ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("warnings: %w", err)
	}
	defer rows.Close()
	var out []Warning
	for rows.Next() {
		var w Warning
		var sev string
		var count sql.NullInt64
		var examples, reason sql.NullString
		if err := rows.Scan(&w.Kind, &sev, &w.Message, &count, &examples, &reason); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.Severity = Severity(sev)
		w.Count = int(count.Int64)
		w.Examples = unmarshalStrings(examples.String)
		w.Reason = reason.String
		out = append(out, w)
	}
	return out, rows.Err()
}
