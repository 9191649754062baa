package expense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/expense-tracker/internal/auth"
	"github.com/zombor/expense-tracker/internal/category"
	"github.com/zombor/expense-tracker/internal/money"
	"github.com/zombor/expense-tracker/internal/scanning"
)

const defaultOCRConcurrency = 3

var (
	filenameCharsRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spacesRe        = regexp.MustCompile(`\s+`)
	currencyRe      = regexp.MustCompile(`^[A-Z]{3}$`)
)

// IDGenerator generates unique IDs for users, expenses and receipt files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles users, expenses and the receipt scan pipeline
type Service struct {
	db          DB
	recognizer  scanning.Recognizer
	normalizer  scanning.Normalizer
	storage     Storage
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
	ocrSem      chan struct{} // bounds concurrent recognitions
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, recognizer scanning.Recognizer, normalizer scanning.Normalizer, storage Storage, metrics *Metrics) *Service {
	return NewServiceWithDeps(db, recognizer, normalizer, storage, metrics, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer scanning.Recognizer, normalizer scanning.Normalizer, storage Storage, metrics *Metrics, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		recognizer:  recognizer,
		normalizer:  normalizer,
		storage:     storage,
		metrics:     metrics,
		idGenerator: idGen,
		timeSource:  timeSrc,
		ocrSem:      make(chan struct{}, defaultOCRConcurrency),
	}
}

// SetOCRConcurrency limits how many recognitions run at once. Call it before
// serving requests.
func (s *Service) SetOCRConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.ocrSem = make(chan struct{}, n)
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// keep only alphanumerics, spaces, hyphens and underscores
	base = filenameCharsRe.ReplaceAllString(base, "")
	base = spacesRe.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	ext = filenameCharsRe.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Ping checks that the record store answers
func (s *Service) Ping() error {
	return s.db.Ping()
}

// Register creates an account with default settings
func (s *Service) Register(name, email, password string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case name == "":
		return nil, invalid("name", "Name is required")
	case email == "":
		return nil, invalid("email", "Email is required")
	case password == "":
		return nil, invalid("password", "Password is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	user := &User{
		ID:           s.idGenerator.Generate(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Settings:     DefaultSettings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.SaveUser(user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, auth.ErrEmailExists
		}
		return nil, fmt.Errorf("saving user: %w", err)
	}
	return user, nil
}

// Authenticate checks an email and password pair
func (s *Service) Authenticate(email, password string) (*User, error) {
	user, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(id string) (*User, error) {
	user, err := s.db.GetUser(id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetSettings returns the settings of a user
func (s *Service) GetSettings(userID string) (Settings, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return Settings{}, err
	}
	return user.Settings, nil
}

// UpdateSettings replaces the settings of a user
func (s *Service) UpdateSettings(userID string, settings Settings) (Settings, error) {
	settings.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	if !currencyRe.MatchString(settings.Currency) {
		return Settings{}, invalid("currency", "Currency must be a 3-letter code")
	}

	user, err := s.GetUser(userID)
	if err != nil {
		return Settings{}, err
	}
	user.Settings = settings
	user.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveUser(user); err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	return settings, nil
}

// ScanResult is the outcome of reading a receipt
type ScanResult struct {
	Draft   scanning.Draft `json:"draft"`
	Text    string         `json:"text"`
	Receipt string         `json:"receipt"` // stored image, to attach on save
	// AIStatus tells how the AI normalizer answered
	AIStatus scanning.PayloadStatus `json:"-"`
}

// ScanReceipt stores a receipt image, reads its text and reconciles the
// heuristic fields with the AI normalizer into a draft. A failing or empty
// recognition is ErrRecognition and leaves nothing stored. A failing AI
// normalizer only degrades the draft.
func (s *Service) ScanReceipt(ctx context.Context, ownerID, filename string, data []byte, contentType string, progress scanning.ProgressFunc) (*ScanResult, error) {
	if len(data) == 0 {
		return nil, invalid("file", "No file uploaded")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	name := fmt.Sprintf("%s_%s_%s", ownerID, s.idGenerator.Generate(), sanitizeFilename(filename))
	savedName, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.recognize(ctx, data, contentType, progress)
	if err != nil {
		slog.Error("Failed to read receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.metrics.scanned("recognition_failed")
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedName, "error", delErr)
		}
		return nil, err
	}

	fields := scanning.Extract(text)
	payload := s.categorize(ctx, text)
	s.metrics.scanned("ok")

	return &ScanResult{
		Draft:    scanning.Reconcile(fields, payload, text),
		Text:     text,
		Receipt:  savedName,
		AIStatus: payload.Status,
	}, nil
}

func (s *Service) recognize(ctx context.Context, data []byte, contentType string, progress scanning.ProgressFunc) (string, error) {
	select {
	case s.ocrSem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrRecognition, ctx.Err())
	}
	defer func() { <-s.ocrSem }()

	p := scanning.NewProgress(progress)
	rec, err := s.recognizer.Recognize(ctx, data, contentType, p.Func())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognition, err)
	}
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found", ErrRecognition)
	}
	p.Done()
	return text, nil
}

// categorize asks the AI normalizer and never fails: errors become an
// absent payload.
func (s *Service) categorize(ctx context.Context, text string) scanning.Payload {
	raw, err := s.normalizer.Categorize(ctx, text)
	if err != nil {
		slog.Warn("AI normalizer failed, using heuristic fields", "stage", "categorize", "error", err)
		s.metrics.payload(scanning.PayloadAbsent.String())
		return scanning.AbsentPayload(err)
	}
	payload := scanning.ParsePayload(raw)
	if payload.Status == scanning.PayloadMalformed {
		slog.Warn("AI normalizer reply is malformed", "stage", "parse", "error", payload.Err)
	}
	s.metrics.payload(payload.Status.String())
	return payload
}

// Categorize runs the AI normalizer alone on text
func (s *Service) Categorize(ctx context.Context, text string) (scanning.Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return scanning.Draft{}, invalid("text", "Text is required")
	}
	raw, err := s.normalizer.Categorize(ctx, text)
	if err != nil {
		s.metrics.payload(scanning.PayloadAbsent.String())
		return scanning.Draft{}, fmt.Errorf("categorizing expense: %w", err)
	}
	payload := scanning.ParsePayload(raw)
	s.metrics.payload(payload.Status.String())
	if payload.Status == scanning.PayloadMalformed {
		slog.Warn("AI normalizer reply is malformed", "stage", "parse", "error", payload.Err)
	}
	return payload.AsDraft(text), nil
}

// ExpenseInput is a new expense as submitted by its owner
type ExpenseInput struct {
	Title       string       `json:"title"`
	Amount      money.Amount `json:"amount"`
	Date        string       `json:"date"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Receipt     string       `json:"receipt"`
}

// ExpenseUpdate changes the non-nil fields of an expense
type ExpenseUpdate struct {
	Title       *string       `json:"title"`
	Amount      *money.Amount `json:"amount"`
	Date        *string       `json:"date"`
	Category    *string       `json:"category"`
	Description *string       `json:"description"`
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "Title is required")
	}
	return title, nil
}

func validAmount(amount money.Amount) (money.Amount, error) {
	if amount.Float64() <= 0 {
		return 0, invalid("amount", "Amount must be greater than zero")
	}
	return amount, nil
}

// validDate accepts YYYY-MM-DD or a timestamp and keeps the calendar day
func validDate(date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return "", invalid("date", "Date is required")
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", invalid("date", "Date must be YYYY-MM-DD")
}

func validCategory(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", invalid("category", "Category is required")
	}
	return category.Normalize(name), nil
}

// CreateExpense validates and saves a new expense. Nothing is saved when
// any field is rejected.
func (s *Service) CreateExpense(ownerID string, in ExpenseInput) (*Expense, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return nil, err
	}
	amount, err := validAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	date, err := validDate(in.Date)
	if err != nil {
		return nil, err
	}
	cat, err := validCategory(in.Category)
	if err != nil {
		return nil, err
	}
	// a receipt can only be attached by the user who scanned it
	if in.Receipt != "" && !strings.HasPrefix(in.Receipt, ownerID+"_") {
		return nil, invalid("receipt", "Unknown receipt")
	}

	now := s.timeSource.Now()
	expense := &Expense{
		ID:          s.idGenerator.Generate(),
		OwnerID:     ownerID,
		Title:       title,
		Amount:      amount,
		Category:    cat,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Receipt:     in.Receipt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// GetExpense returns an expense of ownerID. Other owners' expenses are ErrNotFound.
func (s *Service) GetExpense(ownerID, id string) (*Expense, error) {
	expense, err := s.db.GetExpense(id)
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	if expense.OwnerID != ownerID {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return expense, nil
}

// UpdateExpense applies the provided fields, validated like CreateExpense
func (s *Service) UpdateExpense(ownerID, id string, upd ExpenseUpdate) (*Expense, error) {
	expense, err := s.GetExpense(ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		if expense.Title, err = validTitle(*upd.Title); err != nil {
			return nil, err
		}
	}
	if upd.Amount != nil {
		if expense.Amount, err = validAmount(*upd.Amount); err != nil {
			return nil, err
		}
	}
	if upd.Date != nil {
		if expense.Date, err = validDate(*upd.Date); err != nil {
			return nil, err
		}
	}
	if upd.Category != nil {
		if expense.Category, err = validCategory(*upd.Category); err != nil {
			return nil, err
		}
	}
	if upd.Description != nil {
		expense.Description = strings.TrimSpace(*upd.Description)
	}

	expense.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveExpense(expense); err != nil {
		return nil, fmt.Errorf("saving expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns the expenses of ownerID, newest first
func (s *Service) ListExpenses(ownerID string) ([]*Expense, error) {
	expenses, err := s.db.ListExpenses(ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	return expenses, nil
}

// DeleteExpense removes an expense and its receipt image
func (s *Service) DeleteExpense(ownerID, id string) error {
	expense, err := s.GetExpense(ownerID, id)
	if err != nil {
		return err
	}

	if expense.Receipt != "" {
		if err := s.storage.Delete(expense.Receipt); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", expense.Receipt, "error", err)
		}
	}

	if err := s.db.DeleteExpense(id); err != nil {
		return fmt.Errorf("deleting expense from database: %w", err)
	}
	return nil
}

// SweepReceipts deletes stored receipt images older than grace that no
// expense refers to, and returns how many it removed.
func (s *Service) SweepReceipts(grace time.Duration) (int, error) {
	files, err := s.storage.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.timeSource.Now().Add(-grace)
	attached := make(map[string]map[string]bool)
	removed := 0
	for _, file := range files {
		if !file.ModTime.Before(cutoff) {
			continue
		}
		ownerID, _, ok := strings.Cut(file.Name, "_")
		if !ok || ownerID == "" {
			continue
		}

		receipts, seen := attached[ownerID]
		if !seen {
			expenses, err := s.db.ListExpenses(ownerID)
			if err != nil {
				return removed, fmt.Errorf("listing expenses of %s: %w", ownerID, err)
			}
			receipts = make(map[string]bool, len(expenses))
			for _, e := range expenses {
				if e.Receipt != "" {
					receipts[e.Receipt] = true
				}
			}
			attached[ownerID] = receipts
		}
		if receipts[file.Name] {
			continue
		}

		if err := s.storage.Delete(file.Name); err != nil {
			slog.Warn("Failed to delete abandoned receipt", "filename", file.Name, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Swept abandoned receipts", "count", removed)
	}
	return removed, nil
}

// GetReceiptFile retrieves the receipt image of an expense and its content type
func (s *Service) GetReceiptFile(ownerID, id string) ([]byte, string, error) {
	expense, err := s.GetExpense(ownerID, id)
	if err != nil {
		return nil, "", err
	}
	if expense.Receipt == "" {
		return nil, "", fmt.Errorf("receipt of expense %s: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(expense.Receipt)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// Summary aggregates all expenses of ownerID
func (s *Service) Summary(ownerID string) (Summary, error) {
	expenses, err := s.db.ListExpenses(ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("listing expenses: %w", err)
	}
	return Summarize(expenses), nil
}
