package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a document id has no row.
var ErrNotFound = errors.New("memory: document not found")

// Document is one durable knowledge entry. Exactly one vector with the
// same id exists in the vector index for every committed row.
type Document struct {
	ID           int64
	Content      string
	Entities     []string
	ProblemClass string
	Timestamp    time.Time
}

func marshalEntities(entities []string) string {
	if entities == nil {
		entities = []string{}
	}
	data, _ := json.Marshal(entities)
	return string(data)
}

func unmarshalEntities(raw string) []string {
	var entities []string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &entities)
	}
	return entities
}

func insertDocument(db *sql.DB, content string, entities []string, problemClass string) (int64, error) {
	res, err := db.Exec(
		"INSERT INTO documents (content, entities, problem_class) VALUES (?, ?, ?)",
		content, marshalEntities(entities), problemClass,
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return res.LastInsertId()
}

func deleteDocument(db *sql.DB, id int64) error {
	_, err := db.Exec("DELETE FROM documents WHERE id = ?", id)
	return err
}

func updateDocumentRow(db *sql.DB, id int64, content string, entities []string, problemClass string) error {
	res, err := db.Exec(
		"UPDATE documents SET content = ?, entities = ?, problem_class = ?, timestamp = CURRENT_TIMESTAMP WHERE id = ?",
		content, marshalEntities(entities), problemClass, id,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

func scanDocument(row *sql.Row) (Document, error) {
	var (
		doc      Document
		entities string
		ts       string
	)
	err := row.Scan(&doc.ID, &doc.Content, &entities, &doc.ProblemClass, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	doc.Entities = unmarshalEntities(entities)
	doc.Timestamp = parseTimestamp(ts)
	return doc, nil
}

func getDocument(db *sql.DB, id int64) (Document, error) {
	row := db.QueryRow(
		"SELECT id, content, entities, problem_class, timestamp FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

func getAllDocuments(db *sql.DB) ([]Document, error) {
	rows, err := db.Query(
		"SELECT id, content, entities, problem_class, timestamp FROM documents ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc      Document
			entities string
			ts       string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &entities, &doc.ProblemClass, &ts); err != nil {
			return nil, err
		}
		doc.Entities = unmarshalEntities(entities)
		doc.Timestamp = parseTimestamp(ts)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func countDocuments(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// contentsByIDs fetches contents for the given ids, returned in the order
// the ids were passed.
func contentsByIDs(db *sql.DB, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.Query(
		fmt.Sprintf("SELECT id, content FROM documents WHERE id IN (%s)", placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id      int64
			content string
		)
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		out[id] = content
	}
	return out, rows.Err()
}

// lexicalSearch runs an FTS5 match for up to limit contents. Query syntax
// errors are the caller's concern; they surface as SQL errors.
func lexicalSearch(db *sql.DB, query string, limit int) ([]string, error) {
	rows, err := db.Query(
		"SELECT content FROM documents_fts WHERE documents_fts MATCH ? ORDER BY rank LIMIT ?",
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
