// Package sqlite provides a persistence.RecordStore backed by a SQLite
// database. The association record is spread over two tables and replaced
// in a single transaction on every save.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/utils"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// dbRunner abstracts the methods shared by *sql.DB and *sql.Tx so the same
// statements run inside and outside a transaction.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures the record tables.
type Options struct {
	// TablePrefix is prepended to every table name.
	TablePrefix string
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{TablePrefix: "manyjson_"}
}

// RecordStore implements persistence.RecordStore on SQLite.
type RecordStore struct {
	db      *sql.DB
	logger  *zap.Logger
	schemas string
	files   string
	meta    string
}

var _ persistence.RecordStore = (*RecordStore)(nil)

// Open opens (or creates) the database file at path and prepares the
// record tables.
func Open(path string, logger *zap.Logger, options *Options) (*RecordStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	store, err := NewRecordStore(db, logger, options)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStore prepares the record tables in db.
func NewRecordStore(db *sql.DB, logger *zap.Logger, options *Options) (*RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	s := &RecordStore{
		db:      db,
		logger:  logger,
		schemas: options.TablePrefix + "schemas",
		files:   options.TablePrefix + "files",
		meta:    options.TablePrefix + "meta",
	}
	if err := s.createTables(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) createTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			schema_name TEXT PRIMARY KEY,
			schema_path TEXT NOT NULL,
			position INTEGER NOT NULL
		)`, quote(s.schemas)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			schema_name TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			content TEXT,
			is_valid INTEGER NOT NULL,
			errors TEXT NOT NULL,
			PRIMARY KEY (schema_name, position)
		)`, quote(s.files)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`, quote(s.meta)),
	}
	for _, stmt := range stmts {
		s.logger.Debug("Executing DDL statement", zap.String("sql", stmt))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("Failed to create record table", zap.Error(err), zap.String("sql", stmt))
			return fmt.Errorf("failed to create record tables: %w", err)
		}
	}
	return nil
}

// Load reads the saved records, or returns persistence.ErrNoRecord when
// nothing was saved yet.
func (s *RecordStore) Load(ctx context.Context) ([]persistence.AssociationRecord, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = 'saved_at'`, quote(s.meta))).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record metadata: %w", err)
	}

	records, index, err := s.loadSchemas(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if err := s.loadFiles(ctx, s.db, records, index); err != nil {
		return nil, err
	}
	s.logger.Debug("Association record loaded", zap.String("savedAt", savedAt), zap.Int("schemas", len(records)))
	return records, nil
}

func (s *RecordStore) loadSchemas(ctx context.Context, r dbRunner) ([]persistence.AssociationRecord, map[string]int, error) {
	rows, err := r.QueryContext(ctx,
		fmt.Sprintf(`SELECT schema_name, schema_path FROM %s ORDER BY position`, quote(s.schemas)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query schema records: %w", err)
	}
	defer rows.Close()

	records := make([]persistence.AssociationRecord, 0)
	index := make(map[string]int)
	for rows.Next() {
		var rec persistence.AssociationRecord
		if err := rows.Scan(&rec.SchemaName, &rec.SchemaPath); err != nil {
			return nil, nil, fmt.Errorf("failed to scan schema record: %w", err)
		}
		rec.AssociatedFiles = []persistence.FileRecord{}
		index[rec.SchemaName] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate schema records: %w", err)
	}
	return records, index, nil
}

func (s *RecordStore) loadFiles(ctx context.Context, r dbRunner, records []persistence.AssociationRecord, index map[string]int) error {
	rows, err := r.QueryContext(ctx, fmt.Sprintf(
		`SELECT schema_name, name, path, content, is_valid, errors FROM %s ORDER BY schema_name, position`,
		quote(s.files)))
	if err != nil {
		return fmt.Errorf("failed to query file records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schemaName, errorsJSON string
			content                sql.NullString
			isValid                int64
			fr                     persistence.FileRecord
		)
		if err := rows.Scan(&schemaName, &fr.Name, &fr.Path, &content, &isValid, &errorsJSON); err != nil {
			return fmt.Errorf("failed to scan file record: %w", err)
		}
		i, ok := index[schemaName]
		if !ok {
			s.logger.Warn("File record without schema record", zap.String("schema", schemaName), zap.String("path", fr.Path))
			continue
		}
		if content.Valid {
			fr.Content = json.RawMessage(content.String)
		}
		fr.IsValid = isValid != 0
		if err := json.Unmarshal([]byte(errorsJSON), &fr.Errors); err != nil {
			return fmt.Errorf("failed to decode errors of %s: %w", fr.Path, err)
		}
		if fr.Errors == nil {
			fr.Errors = []validation.ErrorRecord{}
		}
		records[i].AssociatedFiles = append(records[i].AssociatedFiles, fr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate file records: %w", err)
	}
	return nil
}

// Save replaces the stored records in one transaction.
func (s *RecordStore) Save(ctx context.Context, records []persistence.AssociationRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.logger.Debug("Transaction initiated for record save")
	defer func() {
		if err != nil {
			s.logger.Debug("Rolling back transaction", zap.Error(err))
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err = s.replace(ctx, tx, records); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record save: %w", err)
	}
	s.logger.Debug("Association record saved", zap.Int("schemas", len(records)))
	return nil
}

func (s *RecordStore) replace(ctx context.Context, r dbRunner, records []persistence.AssociationRecord) error {
	for _, table := range []string{s.files, s.schemas} {
		if _, err := r.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, quote(table))); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	insertSchema := fmt.Sprintf(`INSERT INTO %s (schema_name, schema_path, position) VALUES (?, ?, ?)`, quote(s.schemas))
	insertFile := fmt.Sprintf(`INSERT INTO %s (schema_name, position, name, path, content, is_valid, errors) VALUES (?, ?, ?, ?, ?, ?, ?)`, quote(s.files))

	for i, rec := range records {
		if _, err := r.ExecContext(ctx, insertSchema, rec.SchemaName, rec.SchemaPath, i); err != nil {
			return fmt.Errorf("failed to insert schema record %s: %w", rec.SchemaName, err)
		}
		for j, fr := range rec.AssociatedFiles {
			var content sql.NullString
			if len(fr.Content) > 0 {
				compact, err := utils.CompactJSON(fr.Content)
				if err != nil {
					return fmt.Errorf("failed to encode content of %s: %w", fr.Path, err)
				}
				content = sql.NullString{String: string(compact), Valid: true}
			}
			errs := fr.Errors
			if errs == nil {
				errs = []validation.ErrorRecord{}
			}
			errorsJSON, err := json.Marshal(errs)
			if err != nil {
				return fmt.Errorf("failed to encode errors of %s: %w", fr.Path, err)
			}
			valid := 0
			if fr.IsValid {
				valid = 1
			}
			if _, err := r.ExecContext(ctx, insertFile, rec.SchemaName, j, fr.Name, fr.Path, content, valid, string(errorsJSON)); err != nil {
				return fmt.Errorf("failed to insert file record %s: %w", fr.Path, err)
			}
		}
	}

	_, err := r.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ('saved_at', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, quote(s.meta)),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to update record metadata: %w", err)
	}
	return nil
}

func quote(ident string) string {
	return `"` + ident + `"`
}
