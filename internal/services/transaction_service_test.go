package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/backend/internal/middleware"
	"github.com/fintrack/backend/internal/models"
)

var testUser = &models.User{ID: 1, Username: "janedoe", Email: "jane@example.com", IsActive: true}

func newTransactionRouter(service *TransactionService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/transactions", service.CreateTransaction)
	r.Get("/transactions", service.ListTransactions)
	r.Get("/transactions/stats/summary", service.GetStats)
	r.Get("/transactions/{id}", service.GetTransaction)
	r.Put("/transactions/{id}", service.UpdateTransaction)
	r.Patch("/transactions/{id}/archive", service.ArchiveTransaction)
	r.Delete("/transactions/{id}", service.DeleteTransaction)
	return r
}

func authedRequest(method, target string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewBuffer(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(middleware.WithUser(r.Context(), testUser))
}

func transactionColumns() []string {
	return []string{"id", "user_id", "type", "category", "amount", "description", "date", "archived", "created_at", "updated_at"}
}

func TestTransactionService_CreateTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("successful creation", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(1, "income", "salary", 5000.0, "monthly pay", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "archived", "created_at", "updated_at"}).
				AddRow(10, false, now, now))

		body, _ := json.Marshal(map[string]any{
			"type":        "income",
			"category":    "salary",
			"amount":      5000,
			"description": "monthly pay",
			"date":        "2024-01-01",
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/transactions", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		var tx models.Transaction
		json.Unmarshal(w.Body.Bytes(), &tx)
		assert.Equal(t, 10, tx.ID)
		assert.Equal(t, 1, tx.UserID)
		assert.Equal(t, 5000.0, tx.Amount)
		assert.Equal(t, "2024-01-01", tx.Date.Format(time.DateOnly))
		assert.False(t, tx.Archived)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		for _, amount := range []float64{0, -100} {
			body, _ := json.Marshal(map[string]any{
				"type":        "expense",
				"category":    "rent",
				"amount":      amount,
				"description": "jan rent",
				"date":        "2024-01-02",
			})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest("POST", "/transactions", body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
	})

	t.Run("invalid type rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"type":        "transfer",
			"category":    "rent",
			"amount":      100,
			"description": "jan rent",
			"date":        "2024-01-02",
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/transactions", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing date rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"type":        "expense",
			"category":    "rent",
			"amount":      100,
			"description": "jan rent",
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("POST", "/transactions", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unauthenticated rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString("{}"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTransactionService_GetTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("owned transaction returned", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(10, 1).
			WillReturnRows(sqlmock.NewRows(transactionColumns()).
				AddRow(10, 1, "expense", "rent", 1500.0, "jan rent", date, false, time.Now(), time.Now()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions/10", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var tx models.Transaction
		json.Unmarshal(w.Body.Bytes(), &tx)
		assert.Equal(t, 10, tx.ID)
		assert.Equal(t, "rent", tx.Category)
		assert.Equal(t, "2024-01-02", tx.Date.Format(time.DateOnly))
	})

	t.Run("transaction owned by another user is not found", func(t *testing.T) {
		// The ownership-scoped query returns no row whether the
		// transaction is absent or owned by someone else.
		mock.ExpectQuery("SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(99, 1).
			WillReturnError(sql.ErrNoRows)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions/99", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Transaction not found")
	})

	t.Run("non-numeric id rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions/abc", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_UpdateTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("partial update changes only supplied fields", func(t *testing.T) {
		date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(10, 1).
			WillReturnRows(sqlmock.NewRows(transactionColumns()).
				AddRow(10, 1, "expense", "rent", 1500.0, "jan rent", date, false, time.Now(), time.Now()))
		mock.ExpectQuery("UPDATE transactions SET type = \\$1, category = \\$2, amount = \\$3, description = \\$4, date = \\$5, updated_at = NOW\\(\\) WHERE id = \\$6 AND user_id = \\$7").
			WithArgs("expense", "housing", 1500.0, "jan rent", sqlmock.AnyArg(), 10, 1).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

		body, _ := json.Marshal(map[string]any{"category": "housing"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("PUT", "/transactions/10", body))

		assert.Equal(t, http.StatusOK, w.Code)
		var tx models.Transaction
		json.Unmarshal(w.Body.Bytes(), &tx)
		assert.Equal(t, "housing", tx.Category)
		assert.Equal(t, 1500.0, tx.Amount)
		assert.Equal(t, "jan rent", tx.Description)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"amount": -50})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("PUT", "/transactions/10", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not owned yields not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, type, category, amount, description, date, archived, created_at, updated_at FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(99, 1).
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(map[string]any{"category": "housing"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("PUT", "/transactions/99", body))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTransactionService_ArchiveTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("archive succeeds", func(t *testing.T) {
		mock.ExpectExec("UPDATE transactions SET archived = TRUE, updated_at = NOW\\(\\) WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(10, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("PATCH", "/transactions/10/archive", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Transaction archived successfully")
	})

	t.Run("archiving twice is idempotent", func(t *testing.T) {
		// An already-archived row still matches the WHERE clause, so
		// the second call succeeds silently.
		for i := 0; i < 2; i++ {
			mock.ExpectExec("UPDATE transactions SET archived = TRUE, updated_at = NOW\\(\\) WHERE id = \\$1 AND user_id = \\$2").
				WithArgs(10, 1).
				WillReturnResult(sqlmock.NewResult(0, 1))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest("PATCH", "/transactions/10/archive", nil))

			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("not owned yields not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE transactions SET archived = TRUE, updated_at = NOW\\(\\) WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(99, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("PATCH", "/transactions/99/archive", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTransactionService_DeleteTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("delete succeeds", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(10, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("DELETE", "/transactions/10", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Transaction deleted successfully")
	})

	t.Run("not owned yields not found", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM transactions WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(99, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("DELETE", "/transactions/99", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTransactionService_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("excludes archived by default, ordered by date then id", func(t *testing.T) {
		d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		d2 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery("FROM transactions WHERE user_id = \\$1 AND archived = FALSE ORDER BY date DESC, id DESC OFFSET \\$2 LIMIT \\$3").
			WithArgs(1, 0, 100).
			WillReturnRows(sqlmock.NewRows(transactionColumns()).
				AddRow(11, 1, "expense", "rent", 1500.0, "jan rent", d1, false, time.Now(), time.Now()).
				AddRow(10, 1, "income", "salary", 5000.0, "monthly pay", d2, false, time.Now(), time.Now()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var transactions []models.Transaction
		json.Unmarshal(w.Body.Bytes(), &transactions)
		assert.Len(t, transactions, 2)
		assert.Equal(t, 11, transactions[0].ID)
		assert.Equal(t, 10, transactions[1].ID)
	})

	t.Run("include_archived widens the query", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions WHERE user_id = \\$1 ORDER BY date DESC, id DESC OFFSET \\$2 LIMIT \\$3").
			WithArgs(1, 0, 100).
			WillReturnRows(sqlmock.NewRows(transactionColumns()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions?include_archived=true", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("type and category filters applied", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions WHERE user_id = \\$1 AND archived = FALSE AND type = \\$2 AND category = \\$3 ORDER BY date DESC, id DESC OFFSET \\$4 LIMIT \\$5").
			WithArgs(1, "expense", "rent", 5, 10).
			WillReturnRows(sqlmock.NewRows(transactionColumns()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions?type=expense&category=rent&skip=5&limit=10", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("negative skip rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions?skip=-1", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative limit rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions?limit=-5", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid type filter rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions?type=transfer", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransactionService_GetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewTransactionService(db)
	router := newTransactionRouter(service)

	t.Run("aggregates non-archived transactions", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions WHERE user_id = \\$1 AND archived = FALSE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"total_income", "total_expense", "count"}).
				AddRow(5000.0, 1500.0, 2))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions/stats/summary", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var stats models.TransactionStats
		json.Unmarshal(w.Body.Bytes(), &stats)
		assert.Equal(t, 5000.0, stats.TotalIncome)
		assert.Equal(t, 1500.0, stats.TotalExpense)
		assert.Equal(t, 3500.0, stats.Balance)
		assert.Equal(t, 2, stats.TransactionCount)
	})

	t.Run("empty history yields zeroes", func(t *testing.T) {
		mock.ExpectQuery("FROM transactions WHERE user_id = \\$1 AND archived = FALSE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"total_income", "total_expense", "count"}).
				AddRow(0.0, 0.0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, authedRequest("GET", "/transactions/stats/summary", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var stats models.TransactionStats
		json.Unmarshal(w.Body.Bytes(), &stats)
		assert.Equal(t, 0.0, stats.Balance)
		assert.Equal(t, 0, stats.TransactionCount)
	})
}
