package expense

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zombor/expense-tracker/internal/money"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    email_key TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    settings TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    amount REAL NOT NULL,
    category TEXT NOT NULL,
    date TEXT NOT NULL,
    description TEXT NOT NULL,
    receipt TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_owner_id ON expenses(owner_id);
`

// SQLiteDB implements the DB interface on a pure Go SQLite driver
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path and applies the schema
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// a single connection serializes writers, matching the bolt store
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// SaveUser inserts or replaces a user
func (s *SQLiteDB) SaveUser(user *User) error {
	settings, err := json.Marshal(user.Settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	key := string(emailKey(user.Email))
	var owner string
	err = tx.QueryRow("SELECT id FROM users WHERE email_key = ?", key).Scan(&owner)
	switch {
	case err == nil && owner != user.ID:
		return fmt.Errorf("email %s: %w", user.Email, ErrConflict)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking email: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO users (id, name, email, email_key, password_hash, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			email_key = excluded.email_key,
			password_hash = excluded.password_hash,
			settings = excluded.settings,
			updated_at = excluded.updated_at`,
		user.ID, user.Name, user.Email, key, user.PasswordHash, string(settings),
		user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user: %w", err)
	}
	return nil
}

const userColumns = "id, name, email, password_hash, settings, created_at, updated_at"

// GetUser retrieves a user by ID
func (s *SQLiteDB) GetUser(id string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, err
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email_key = ?", string(emailKey(email)))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
	}
	return user, err
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		user             User
		settings         string
		created, updated int64
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &settings, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &user.Settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	user.CreatedAt = time.Unix(0, created).UTC()
	user.UpdatedAt = time.Unix(0, updated).UTC()
	return &user, nil
}

// SaveExpense inserts or replaces an expense
func (s *SQLiteDB) SaveExpense(expense *Expense) error {
	_, err := s.db.Exec(`
		INSERT INTO expenses (id, owner_id, title, amount, category, date, description, receipt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			amount = excluded.amount,
			category = excluded.category,
			date = excluded.date,
			description = excluded.description,
			receipt = excluded.receipt,
			updated_at = excluded.updated_at`,
		expense.ID, expense.OwnerID, expense.Title, expense.Amount.Float64(), expense.Category,
		expense.Date, expense.Description, expense.Receipt,
		expense.CreatedAt.UnixNano(), expense.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving expense: %w", err)
	}
	return nil
}

const expenseColumns = "id, owner_id, title, amount, category, date, description, receipt, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// scanExpense reads one row. The amount column is scanned loosely because
// imported rows may hold it as text.
func scanExpense(row rowScanner) (*Expense, error) {
	var (
		expense          Expense
		amount           any
		created, updated int64
	)
	err := row.Scan(&expense.ID, &expense.OwnerID, &expense.Title, &amount, &expense.Category,
		&expense.Date, &expense.Description, &expense.Receipt, &created, &updated)
	if err != nil {
		return nil, err
	}
	expense.Amount = looseAmount(amount)
	expense.CreatedAt = time.Unix(0, created).UTC()
	expense.UpdatedAt = time.Unix(0, updated).UTC()
	return &expense, nil
}

func looseAmount(v any) money.Amount {
	switch a := v.(type) {
	case float64:
		return money.Amount(money.Clean(a))
	case int64:
		return money.Amount(money.Clean(float64(a)))
	case string:
		return money.Amount(money.Sanitize(a))
	case []byte:
		return money.Amount(money.Sanitize(string(a)))
	default:
		return 0
	}
}

// GetExpense retrieves an expense by ID
func (s *SQLiteDB) GetExpense(id string) (*Expense, error) {
	row := s.db.QueryRow("SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns all expenses of one owner
func (s *SQLiteDB) ListExpenses(ownerID string) ([]*Expense, error) {
	rows, err := s.db.Query("SELECT "+expenseColumns+" FROM expenses WHERE owner_id = ?", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*Expense, 0)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating expenses: %w", err)
	}
	return expenses, nil
}

// DeleteExpense removes an expense
func (s *SQLiteDB) DeleteExpense(id string) error {
	res, err := s.db.Exec("DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return nil
}

// Ping checks the connection
func (s *SQLiteDB) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
