package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fintrack/backend/internal/middleware"
	"github.com/fintrack/backend/internal/models"
)

// TransactionService enforces ownership, archive semantics, filtering
// and statistics aggregation over user transactions. Every operation is
// scoped to the authenticated user resolved by the auth guard; a
// transaction owned by someone else is indistinguishable from one that
// does not exist.
type TransactionService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// TransactionCreateRequest represents the transaction creation payload
// @Description Transaction creation request structure
type TransactionCreateRequest struct {
	Type        string      `json:"type" validate:"required,oneof=income expense" example:"expense"` // income or expense
	Category    string      `json:"category" validate:"required,min=1,max=50" example:"rent"`        // Free-text category label
	Amount      float64     `json:"amount" validate:"required,gt=0" example:"1500"`                  // Strictly positive amount
	Description string      `json:"description" validate:"required,min=1,max=500" example:"jan rent"`
	Date        models.Date `json:"date" swaggertype:"string" example:"2024-01-02"` // Calendar date (YYYY-MM-DD)
}

// TransactionUpdateRequest represents a partial update; only supplied
// fields change
// @Description Transaction update request structure (all fields optional)
type TransactionUpdateRequest struct {
	Type        *string      `json:"type" validate:"omitempty,oneof=income expense"`
	Category    *string      `json:"category" validate:"omitempty,min=1,max=50"`
	Amount      *float64     `json:"amount" validate:"omitempty,gt=0"`
	Description *string      `json:"description" validate:"omitempty,min=1,max=500"`
	Date        *models.Date `json:"date" swaggertype:"string"`
}

type listTransactionsQuery struct {
	Skip     int    `validate:"min=0"`
	Limit    int    `validate:"min=0,max=500"`
	Type     string `validate:"omitempty,oneof=income expense"`
	Category string `validate:"omitempty,max=50"`
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateTransaction records a new income or expense
// @Summary Create a transaction
// @Description Record a new income or expense for the authenticated user
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transaction body TransactionCreateRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransactionCreateRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Date.IsZero() {
		SendErrorResponse(w, "Date is required (YYYY-MM-DD)", http.StatusBadRequest, nil)
		return
	}

	tx := models.Transaction{
		UserID:      user.ID,
		Type:        req.Type,
		Category:    req.Category,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
	}

	err := ts.db.QueryRow(`
        INSERT INTO transactions (user_id, type, category, amount, description, date)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, archived, created_at, updated_at
    `, tx.UserID, tx.Type, tx.Category, tx.Amount, tx.Description, tx.Date).
		Scan(&tx.ID, &tx.Archived, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		log.Printf("[TRANSACTION] Create failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Created transaction %d for user %d", tx.ID, user.ID)
	sendJSON(w, http.StatusCreated, tx)
}

// ListTransactions retrieves the caller's transactions
// @Summary List transactions
// @Description List the authenticated user's transactions with optional filters and pagination
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset (default 0, must be >= 0)"
// @Param limit query int false "Page size (default 100, max 500, must be >= 0)"
// @Param include_archived query bool false "Include archived transactions"
// @Param type query string false "Filter by type (income|expense)"
// @Param category query string false "Filter by category"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	q := listTransactionsQuery{
		Skip:     0,
		Limit:    100,
		Type:     strings.TrimSpace(r.URL.Query().Get("type")),
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
	}

	// Negative skip/limit are rejected, not clamped.
	if s := r.URL.Query().Get("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			SendErrorResponse(w, "Invalid skip parameter", http.StatusBadRequest, nil)
			return
		}
		q.Skip = v
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil {
			SendErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest, nil)
			return
		}
		q.Limit = v
	}

	if err := ts.validator.ValidateStruct(&q); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"

	transactions, err := ts.fetchTransactions(user.ID, q, includeArchived)
	if err != nil {
		log.Printf("[TRANSACTION] List failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	sendJSON(w, http.StatusOK, transactions)
}

// GetTransaction retrieves a single transaction
// @Summary Get transaction by ID
// @Description Retrieve one of the authenticated user's transactions
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{id} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID, ok := ts.parseTransactionID(w, r)
	if !ok {
		return
	}

	tx, err := ts.fetchOwnedTransaction(user.ID, txID)
	if err != nil {
		ts.respondLookupError(w, user.ID, txID, err)
		return
	}

	sendJSON(w, http.StatusOK, tx)
}

// UpdateTransaction applies a partial update
// @Summary Update a transaction
// @Description Update supplied fields of one of the authenticated user's transactions
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transaction ID"
// @Param transaction body TransactionUpdateRequest true "Fields to update"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{id} [put]
func (ts *TransactionService) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID, ok := ts.parseTransactionID(w, r)
	if !ok {
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransactionUpdateRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := ts.fetchOwnedTransaction(user.ID, txID)
	if err != nil {
		ts.respondLookupError(w, user.ID, txID, err)
		return
	}

	if req.Type != nil {
		tx.Type = *req.Type
	}
	if req.Category != nil {
		tx.Category = *req.Category
	}
	if req.Amount != nil {
		tx.Amount = *req.Amount
	}
	if req.Description != nil {
		tx.Description = *req.Description
	}
	if req.Date != nil {
		tx.Date = *req.Date
	}

	err = ts.db.QueryRow(`
        UPDATE transactions
        SET type = $1, category = $2, amount = $3, description = $4, date = $5, updated_at = NOW()
        WHERE id = $6 AND user_id = $7
        RETURNING updated_at
    `, tx.Type, tx.Category, tx.Amount, tx.Description, tx.Date, tx.ID, user.ID).
		Scan(&tx.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// Row deleted between lookup and mutation.
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Update failed for transaction %d: %v", tx.ID, err)
		SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Updated transaction %d for user %d", tx.ID, user.ID)
	sendJSON(w, http.StatusOK, tx)
}

// ArchiveTransaction soft-deletes a transaction
// @Summary Archive a transaction
// @Description Mark one of the authenticated user's transactions as archived (idempotent)
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transaction ID"
// @Success 200 {object} map[string]string "Confirmation message"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{id}/archive [patch]
func (ts *TransactionService) ArchiveTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID, ok := ts.parseTransactionID(w, r)
	if !ok {
		return
	}

	result, err := ts.db.Exec(`
        UPDATE transactions
        SET archived = TRUE, updated_at = NOW()
        WHERE id = $1 AND user_id = $2
    `, txID, user.ID)
	if err != nil {
		log.Printf("[TRANSACTION] Archive failed for transaction %d: %v", txID, err)
		SendErrorResponse(w, "Failed to archive transaction", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[TRANSACTION] Archived transaction %d for user %d", txID, user.ID)
	sendJSON(w, http.StatusOK, map[string]string{"message": "Transaction archived successfully"})
}

// DeleteTransaction permanently removes a transaction
// @Summary Delete a transaction
// @Description Permanently delete one of the authenticated user's transactions
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Transaction ID"
// @Success 200 {object} map[string]string "Confirmation message"
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{id} [delete]
func (ts *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	txID, ok := ts.parseTransactionID(w, r)
	if !ok {
		return
	}

	result, err := ts.db.Exec(`
        DELETE FROM transactions
        WHERE id = $1 AND user_id = $2
    `, txID, user.ID)
	if err != nil {
		log.Printf("[TRANSACTION] Delete failed for transaction %d: %v", txID, err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[TRANSACTION] Deleted transaction %d for user %d", txID, user.ID)
	sendJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted successfully"})
}

// GetStats aggregates the caller's non-archived transactions
// @Summary Get transaction statistics
// @Description Totals over the authenticated user's non-archived transactions
// @Tags statistics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.TransactionStats
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/stats/summary [get]
func (ts *TransactionService) GetStats(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var stats models.TransactionStats
	err := ts.db.QueryRow(`
        SELECT
            COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0),
            COUNT(*)
        FROM transactions
        WHERE user_id = $1 AND archived = FALSE
    `, user.ID).Scan(&stats.TotalIncome, &stats.TotalExpense, &stats.TransactionCount)
	if err != nil {
		log.Printf("[TRANSACTION] Stats failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to compute statistics", http.StatusInternalServerError, nil)
		return
	}

	stats.Balance = stats.TotalIncome - stats.TotalExpense
	sendJSON(w, http.StatusOK, stats)
}

// Database helper functions

func (ts *TransactionService) parseTransactionID(w http.ResponseWriter, r *http.Request) (int, bool) {
	txID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || txID < 1 {
		SendErrorResponse(w, "Invalid transaction ID", http.StatusBadRequest, nil)
		return 0, false
	}
	return txID, true
}

// fetchOwnedTransaction is the single ownership gate used by get,
// update, archive and delete. A transaction owned by another user
// yields sql.ErrNoRows, the same as one that does not exist.
func (ts *TransactionService) fetchOwnedTransaction(userID, txID int) (*models.Transaction, error) {
	tx := &models.Transaction{}
	err := ts.db.QueryRow(`
        SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at
        FROM transactions
        WHERE id = $1 AND user_id = $2
    `, txID, userID).Scan(
		&tx.ID, &tx.UserID, &tx.Type, &tx.Category, &tx.Amount,
		&tx.Description, &tx.Date, &tx.Archived, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (ts *TransactionService) respondLookupError(w http.ResponseWriter, userID, txID int, err error) {
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	log.Printf("[TRANSACTION] Lookup failed for transaction %d (user %d): %v", txID, userID, err)
	SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
}

func (ts *TransactionService) fetchTransactions(userID int, q listTransactionsQuery, includeArchived bool) ([]models.Transaction, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIndex := 2

	if !includeArchived {
		conditions = append(conditions, "archived = FALSE")
	}

	if q.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, q.Type)
		argIndex++
	}

	if q.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, q.Category)
		argIndex++
	}

	query := `
        SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at
        FROM transactions
        WHERE ` + strings.Join(conditions, " AND ")

	// id DESC breaks date ties deterministically.
	query += " ORDER BY date DESC, id DESC"
	query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, q.Skip, q.Limit)

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.Type, &tx.Category, &tx.Amount,
			&tx.Description, &tx.Date, &tx.Archived, &tx.CreatedAt, &tx.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}
