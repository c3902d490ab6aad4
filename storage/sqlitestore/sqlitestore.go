// Package sqlitestore provides a SQLite implementation of the storage.Store
// interface, suitable for single-node deployments that need applications to
// survive restarts.
//
// Examples:
//
//	store := sqlitestore.New("file:passage.db")
//	store := sqlitestore.New(":memory:", sqlitestore.WithTableName("apps"))
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/dpup/passage/storage"

	"github.com/mattn/go-sqlite3"
)

// Option is a functional option for configuring the store.
type Option func(*store)

// WithTableName overrides the default table name of "passage_store".
func WithTableName(tableName string) Option {
	return func(s *store) {
		s.tableName = tableName
	}
}

// New returns a store that provides sqlite backed storage, the table will be
// created optimistically on initialization. Any errors are considered
// non-recoverable and will panic.
func New(conn string, opts ...Option) storage.Store {
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		panic("failed to open sqlite connection: " + err.Error())
	}
	s := &store{
		db:        db,
		tableName: "passage_store",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ensureTable()
	return s
}

type store struct {
	db *sql.DB

	tableName string
}

func (s *store) Create(models ...storage.Model) error {
	return s.execPerModel(
		"INSERT INTO "+s.tableName+" (id, entity_type, value) VALUES (?, ?, ?)",
		models,
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(id, entityType, value)
		},
		false)
}

func (s *store) Update(models ...storage.Model) error {
	return s.execPerModel(
		"UPDATE "+s.tableName+" SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND entity_type = ?",
		models,
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(value, id, entityType)
		},
		true)
}

func (s *store) Upsert(models ...storage.Model) error {
	return s.execPerModel(
		`INSERT INTO `+s.tableName+` (id, entity_type, value, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id, entity_type) DO UPDATE SET
		value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		models,
		func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error) {
			return stmt.Exec(id, entityType, value)
		},
		false)
}

// execPerModel runs a prepared statement once per model inside a single
// transaction, rolling back on the first failure.
func (s *store) execPerModel(
	query string,
	models []storage.Model,
	exec func(stmt *sql.Stmt, id, entityType string, value []byte) (sql.Result, error),
	requireRow bool,
) error {
	tx, err := s.db.Begin()
	if err != nil {
		return translateError(err)
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return translateError(err)
	}
	defer stmt.Close()

	for _, model := range models {
		value, err := json.Marshal(model)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}
		res, err := exec(stmt, model.PK(), storage.Name(model), value)
		if err != nil {
			tx.Rollback()
			return translateError(err)
		}
		if requireRow {
			if i, err := res.RowsAffected(); i == 0 || err != nil {
				tx.Rollback()
				return storage.ErrNotFound
			}
		}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return translateError(err)
	}

	return nil
}

func (s *store) Read(id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	query := "SELECT value FROM " + s.tableName + " WHERE id = ? AND entity_type = ?"
	row := s.db.QueryRow(query, id, storage.Name(model))

	var value []byte
	if err := row.Scan(&value); err != nil {
		return translateError(err)
	}

	return json.Unmarshal(value, model)
}

func (s *store) Delete(model storage.Model) error {
	stmt, err := s.db.Prepare("DELETE FROM " + s.tableName + " WHERE id = ? AND entity_type = ?")
	if err != nil {
		return translateError(err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(model.PK(), storage.Name(model))
	if err != nil {
		return translateError(err)
	}
	if i, err := res.RowsAffected(); i == 0 || err != nil {
		return storage.ErrNotFound
	}
	return nil
}

// List supports both value and pointer models; the slice element type must
// match the filter type.
func (s *store) List(models any, filter storage.Model) error {
	if err := storage.ValidateReceiver(filter); err != nil {
		return err
	}

	modelsVal := reflect.ValueOf(models)
	if modelsVal.Kind() != reflect.Ptr || modelsVal.Elem().Kind() != reflect.Slice {
		return storage.ErrSliceRequired
	}
	sliceVal := modelsVal.Elem()
	elemType := sliceVal.Type().Elem()
	if elemType != reflect.TypeOf(filter) {
		return storage.ErrTypeMismatch
	}
	structType := elemType
	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	query, args := s.buildListQuery(filter)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return translateError(err)
		}

		newElemPtr := reflect.New(structType)
		newElem := newElemPtr.Elem()
		if err := json.Unmarshal([]byte(value), newElemPtr.Interface()); err != nil {
			return fmt.Errorf("%w: %s", storage.ErrInvalidModel, err)
		}

		if elemType.Kind() == reflect.Ptr {
			sliceVal.Set(reflect.Append(sliceVal, newElemPtr))
		} else {
			sliceVal.Set(reflect.Append(sliceVal, newElem))
		}
	}

	if err := rows.Err(); err != nil {
		return translateError(err)
	}

	return nil
}

func (s *store) Exists(id string, model storage.Model) (bool, error) {
	query := "SELECT COUNT(*) FROM " + s.tableName + " WHERE id = ? AND entity_type = ?"
	var value int
	err := s.db.QueryRow(query, id, storage.Name(model)).Scan(&value)
	if err != nil {
		return false, translateError(err)
	}
	return value > 0, nil
}

func (s *store) ensureTable() {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.tableName + ` (
		id TEXT,
		entity_type TEXT,
		value BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, entity_type)
	);`)
	if err != nil {
		panic("failed to create table: " + err.Error())
	}
}

func (s *store) buildListQuery(model storage.Model) (string, []any) {
	filterValue := reflect.Indirect(reflect.ValueOf(model))

	var whereClauses []string
	var params []interface{}
	whereClauses = append(whereClauses, "entity_type = ?")
	params = append(params, storage.Name(model))

	for i := 0; i < filterValue.NumField(); i++ {
		field := filterValue.Field(i)
		typeField := filterValue.Type().Field(i)

		// Only include fields that are non-nil pointers or are non-zero values.
		if (field.Kind() == reflect.Ptr && !field.IsNil()) || (!field.IsZero() && field.Kind() != reflect.Ptr) {
			w := fmt.Sprintf("json_extract(value, '$.%s') = ?", jsonFieldName(typeField))
			whereClauses = append(whereClauses, w)
			params = append(params, field.Interface())
		}
	}

	whereClause := "WHERE " + strings.Join(whereClauses, " AND ")
	query := fmt.Sprintf("SELECT value FROM %s %s", s.tableName, whereClause)
	return query, params
}

// jsonFieldName resolves the key a struct field is serialized under, so that
// filters work on models that customize their JSON tags.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return f.Name
	}
	return tag
}

func translateError(err error) error {
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if sqlErr, ok := err.(sqlite3.Error); ok {
		switch sqlErr.Code {
		case sqlite3.ErrNotFound:
			return storage.ErrNotFound
		case sqlite3.ErrConstraint:
			return storage.ErrAlreadyExists
		}
	}
	return err
}
