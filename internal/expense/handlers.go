package expense

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/expense-tracker/internal/auth"
	"github.com/zombor/expense-tracker/internal/scanning"
)

// maxUploadSize bounds receipt uploads; phone photos can be large
const maxUploadSize = int64(50 << 20)

const tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps service errors onto HTTP statuses. Unexpected errors are
// logged and answered with fallback so internals never reach the client.
func respondError(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Password must be at least 8 characters", "field": "password"})
	case errors.Is(err, auth.ErrLongPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Password must be at most 72 bytes", "field": "password"})
	case errors.Is(err, ErrRecognition):
		writeError(w, http.StatusUnprocessableEntity, "Could not read the receipt. Please try again with a clearer photo.")
	default:
		slog.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// session returns the caller set by requireAuth
func session(r *http.Request) auth.Session {
	s, _ := auth.SessionFrom(r.Context())
	return s
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleHealth reports whether the record store answers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(); err != nil {
		slog.Error("Health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.service.Register(req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, err, "Error registering user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user.Public(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.service.Authenticate(req.Email, req.Password)
	if err != nil {
		respondError(w, err, "Error logging in")
		return
	}
	token, err := s.cfg.Sessions.Generate(user.ID, user.Email)
	if err != nil {
		respondError(w, err, "Error logging in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.Sessions.TokenDuration() / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user.Public(),
		"token": token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(session(r).UserID)
	if errors.Is(err, ErrNotFound) {
		// token outlived its account
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		respondError(w, err, "Error loading user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.GetSettings(session(r).UserID)
	if err != nil {
		respondError(w, err, "Error loading settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.service.UpdateSettings(session(r).UserID, req)
	if err != nil {
		respondError(w, err, "Error saving settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// uploadContentType prefers the part header, then the file extension
func uploadContentType(header, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	// the service sniffs the bytes
	return ""
}

// scanEvent is one line of a streamed scan response
type scanEvent struct {
	Type    string          `json:"type"`
	Percent *int            `json:"percent,omitempty"`
	Draft   *scanning.Draft `json:"draft,omitempty"`
	Text    string          `json:"text,omitempty"`
	Receipt string          `json:"receipt,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// handleScan reads a receipt into a draft. With ?stream=1 the response is
// NDJSON: progress events, then one draft or error event.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMessage)
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "No file was selected. Please choose a file to upload.",
			"field": "file",
		})
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeMessage)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}
	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
	ownerID := session(r).UserID

	if r.URL.Query().Get("stream") != "1" {
		result, err := s.service.ScanReceipt(r.Context(), ownerID, header.Filename, data, contentType, nil)
		if err != nil {
			respondError(w, err, "Error scanning receipt")
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	send := func(ev scanEvent) {
		if err := enc.Encode(ev); err != nil {
			slog.Debug("Scan client went away", "error", err)
			return
		}
		rc.Flush()
	}

	result, err := s.service.ScanReceipt(r.Context(), ownerID, header.Filename, data, contentType, func(p int) {
		send(scanEvent{Type: "progress", Percent: &p})
	})
	if err != nil {
		message := "Error scanning receipt"
		if errors.Is(err, ErrRecognition) {
			message = "Could not read the receipt. Please try again with a clearer photo."
		} else {
			slog.Error("Error scanning receipt", "error", err)
		}
		send(scanEvent{Type: "error", Error: message})
		return
	}
	send(scanEvent{Type: "draft", Draft: &result.Draft, Text: result.Text, Receipt: result.Receipt})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	draft, err := s.service.Categorize(r.Context(), req.Text)
	if err != nil {
		respondError(w, err, "Failed to categorize expense")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.service.ListExpenses(session(r).UserID)
	if err != nil {
		respondError(w, err, "Failed to fetch expenses")
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseInput
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := s.service.CreateExpense(session(r).UserID, req)
	if err != nil {
		respondError(w, err, "Failed to save expense")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := s.service.UpdateExpense(session(r).UserID, r.PathValue("id"), req)
	if err != nil {
		respondError(w, err, "Failed to update expense")
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteExpense(session(r).UserID, r.PathValue("id")); err != nil {
		respondError(w, err, "Failed to delete expense")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted"})
}

// handleGetReceipt returns the stored receipt image of an expense
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(session(r).UserID, r.PathValue("id"))
	if err != nil {
		respondError(w, err, "Error loading receipt")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary(session(r).UserID)
	if err != nil {
		respondError(w, err, "Error building summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
