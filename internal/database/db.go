package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/waterscraper/pkg/models"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS consumption (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		liters INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_consumption_published ON consumption(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// UpsertConsumption stores a day's reading. A changed value for an existing
// day replaces it and queues it for publishing again.
func (db *DB) UpsertConsumption(data *models.Consumption) error {
	query := `
	INSERT INTO consumption (date, liters, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		liters = excluded.liters,
		updated_at = excluded.updated_at,
		published = CASE WHEN consumption.liters = excluded.liters THEN consumption.published ELSE 0 END
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.conn.Exec(query, data.Date.Format(dateLayout), data.Liters, now, now)
	if err != nil {
		return fmt.Errorf("upserting consumption: %w", err)
	}

	return nil
}

// GetConsumption retrieves the reading for a date, or nil if there is none
func (db *DB) GetConsumption(date time.Time) (*models.Consumption, error) {
	query := `SELECT id, date, liters, published FROM consumption WHERE date = ?`

	data, err := scanConsumption(db.conn.QueryRow(query, date.Format(dateLayout)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying consumption: %w", err)
	}
	return data, nil
}

// ListConsumption retrieves readings within [since, until], newest first.
// Zero bounds are open.
func (db *DB) ListConsumption(since, until time.Time) ([]models.Consumption, error) {
	return db.list(`SELECT id, date, liters, published FROM consumption WHERE 1 = 1`, since, until)
}

// ListUnpublishedConsumption is ListConsumption restricted to unpublished readings
func (db *DB) ListUnpublishedConsumption(since, until time.Time) ([]models.Consumption, error) {
	return db.list(`SELECT id, date, liters, published FROM consumption WHERE published = 0`, since, until)
}

func (db *DB) list(query string, since, until time.Time) ([]models.Consumption, error) {
	var args []any
	if !since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, since.Format(dateLayout))
	}
	if !until.IsZero() {
		query += ` AND date <= ?`
		args = append(args, until.Format(dateLayout))
	}
	query += ` ORDER BY date DESC`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying consumption: %w", err)
	}
	defer rows.Close()

	var results []models.Consumption
	for rows.Next() {
		data, err := scanConsumption(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, *data)
	}

	return results, rows.Err()
}

// MarkPublished marks a reading as published
func (db *DB) MarkPublished(id int) error {
	query := `UPDATE consumption SET published = 1 WHERE id = ?`
	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConsumption(row scanner) (*models.Consumption, error) {
	var data models.Consumption
	var dateStr string

	if err := row.Scan(&data.ID, &dateStr, &data.Liters, &data.Published); err != nil {
		return nil, err
	}

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}
	data.Date = date

	return &data, nil
}
