package expense

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	usersBucket        = "users"
	usersByEmailBucket = "users_by_email"
	expensesBucket     = "expenses"
)

// DB defines the interface for database operations
type DB interface {
	// SaveUser inserts or replaces a user. The email must not belong to another user.
	SaveUser(user *User) error

	// GetUser retrieves a user by ID
	GetUser(id string) (*User, error)

	// GetUserByEmail retrieves a user by email, case-insensitively
	GetUserByEmail(email string) (*User, error)

	// SaveExpense inserts or replaces an expense
	SaveExpense(expense *Expense) error

	// GetExpense retrieves an expense by ID
	GetExpense(id string) (*Expense, error)

	// ListExpenses returns all expenses of one owner
	ListExpenses(ownerID string) ([]*Expense, error)

	// DeleteExpense removes an expense
	DeleteExpense(id string) error

	// Ping checks that the database answers
	Ping() error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucket, usersByEmailBucket, expensesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func emailKey(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}

// SaveUser saves a user and its email index entry
func (b *BoltDB) SaveUser(user *User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket([]byte(usersBucket))
		byEmail := tx.Bucket([]byte(usersByEmailBucket))

		key := emailKey(user.Email)
		if owner := byEmail.Get(key); owner != nil && string(owner) != user.ID {
			return fmt.Errorf("email %s: %w", user.Email, ErrConflict)
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}
		if err := users.Put([]byte(user.ID), data); err != nil {
			return err
		}
		return byEmail.Put(key, []byte(user.ID))
	})
}

// GetUser retrieves a user by ID
func (b *BoltDB) GetUser(id string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx, []byte(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user through the email index
func (b *BoltDB) GetUserByEmail(email string) (*User, error) {
	var user *User
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(usersByEmailBucket)).Get(emailKey(email))
		if id == nil {
			return fmt.Errorf("user with email %s: %w", email, ErrNotFound)
		}
		var err error
		user, err = getUser(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func getUser(tx *bbolt.Tx, id []byte) (*User, error) {
	data := tx.Bucket([]byte(usersBucket)).Get(id)
	if data == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshaling user: %w", err)
	}
	return &user, nil
}

// SaveExpense saves an expense to the database
func (b *BoltDB) SaveExpense(expense *Expense) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		data, err := json.Marshal(expense)
		if err != nil {
			return fmt.Errorf("marshaling expense: %w", err)
		}
		return bucket.Put([]byte(expense.ID), data)
	})
}

// GetExpense retrieves an expense by ID
func (b *BoltDB) GetExpense(id string) (*Expense, error) {
	var expense *Expense
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(expensesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &expense)
	})
	if err != nil {
		return nil, err
	}
	if expense.ID == "" {
		expense.ID = id
	}
	return expense, nil
}

// ListExpenses returns the expenses of one owner. Records that are not JSON
// at all are skipped and logged rather than failing the whole listing.
func (b *BoltDB) ListExpenses(ownerID string) ([]*Expense, error) {
	expenses := make([]*Expense, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(expensesBucket)).ForEach(func(k, v []byte) error {
			var expense Expense
			if err := json.Unmarshal(v, &expense); err != nil {
				slog.Warn("Skipping undecodable expense", "id", string(k), "error", err)
				return nil
			}
			if expense.ID == "" {
				expense.ID = string(k)
			}
			if expense.OwnerID == ownerID {
				expenses = append(expenses, &expense)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// DeleteExpense removes an expense from the database
func (b *BoltDB) DeleteExpense(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(expensesBucket))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return bucket.Delete([]byte(id))
	})
}

// Ping checks that the buckets are readable
func (b *BoltDB) Ping() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(expensesBucket)) == nil {
			return fmt.Errorf("bucket %s missing", expensesBucket)
		}
		return nil
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
