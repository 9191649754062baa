package expense

import (
	"encoding/json"
	"time"

	"github.com/zombor/expense-tracker/internal/money"
)

// Expense is a saved expense owned by one user
type Expense struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Title       string       `json:"title"`
	Amount      money.Amount `json:"amount"`
	Category    string       `json:"category"`
	Date        string       `json:"date"` // YYYY-MM-DD; older records may hold other layouts
	Description string       `json:"description"`
	Receipt     string       `json:"receipt,omitempty"` // stored receipt image
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// UnmarshalJSON decodes a stored expense. A field holding the wrong type
// is left at its zero value instead of failing the whole record, so a bad
// date still lands in UnknownMonth with its amount counted.
func (e *Expense) UnmarshalJSON(data []byte) error {
	type record Expense
	var r record
	err := json.Unmarshal(data, &r)
	if err == nil {
		*e = Expense(r)
		return nil
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) != nil {
		return err
	}
	r = record{}
	for key, dst := range map[string]any{
		"id":          &r.ID,
		"owner_id":    &r.OwnerID,
		"title":       &r.Title,
		"amount":      &r.Amount,
		"category":    &r.Category,
		"date":        &r.Date,
		"description": &r.Description,
		"receipt":     &r.Receipt,
		"created_at":  &r.CreatedAt,
		"updated_at":  &r.UpdatedAt,
	} {
		if raw, ok := fields[key]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}
	*e = Expense(r)
	return nil
}

// Preferences are per-user UI toggles
type Preferences struct {
	DarkMode      bool `json:"darkMode"`
	Notifications bool `json:"notifications"`
}

// Settings are the user-editable account settings
type Settings struct {
	Currency    string      `json:"currency"`
	Preferences Preferences `json:"preferences"`
}

// DefaultSettings returns the settings of a new account
func DefaultSettings() Settings {
	return Settings{
		Currency:    "USD",
		Preferences: Preferences{DarkMode: false, Notifications: true},
	}
}

// User is a registered account
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Settings     Settings  `json:"settings"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is a User without credentials, safe to return to clients
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
}

// Public strips the password hash
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Settings:  u.Settings,
		CreatedAt: u.CreatedAt,
	}
}
