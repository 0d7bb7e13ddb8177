package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sda-reconciliation-backend/internal/ledger"
	"sda-reconciliation-backend/internal/models"
	"sda-reconciliation-backend/internal/services/importer"
	"sda-reconciliation-backend/internal/services/matching"
	"sda-reconciliation-backend/internal/statement"
	"sda-reconciliation-backend/internal/store"
	"sda-reconciliation-backend/internal/xero"
)

type BankHandler struct {
	store    *store.Store
	importer *importer.Service
	engine   *matching.Engine
	syncer   *xero.Syncer
}

func NewBankHandler(s *store.Store, imp *importer.Service, eng *matching.Engine, syncer *xero.Syncer) *BankHandler {
	return &BankHandler{store: s, importer: imp, engine: eng, syncer: syncer}
}

func (h *BankHandler) CreateAccount(c *gin.Context) {
	var payload struct {
		OrganizationID string `json:"organization_id"`
		BankName       string `json:"bank_name"`
		AccountName    string `json:"account_name"`
		BSB            string `json:"bsb"`
		AccountNumber  string `json:"account_number"`
		AccountType    string `json:"account_type"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	orgID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return
	}

	acct := &models.BankAccount{
		OrganizationID: orgID,
		BankName:       payload.BankName,
		AccountName:    payload.AccountName,
		BSB:            payload.BSB,
		AccountNumber:  payload.AccountNumber,
		AccountType:    models.AccountType(payload.AccountType),
		IsActive:       true,
	}
	if err := h.store.CreateAccount(c.Request.Context(), acct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": acct})
}

func (h *BankHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.store.ListAccounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// ImportStatement accepts a multipart upload: fields bank_account_id and
// dialect plus the statement file.
func (h *BankHandler) ImportStatement(c *gin.Context) {
	accountID, err := uuid.Parse(c.PostForm("bank_account_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bank account ID"})
		return
	}
	dialect, err := statement.ParseDialect(c.PostForm("dialect"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	result, err := h.importer.ImportStatement(c.Request.Context(), accountID, dialect, string(raw))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, importer.ErrEmptyImport):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, store.ErrUnknownAccount):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *BankHandler) AutoMatch(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bank account ID"})
		return
	}

	result, err := h.engine.Run(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bank account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *BankHandler) SyncStatement(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bank account ID"})
		return
	}

	result, err := h.syncer.Sync(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": "bank account not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *BankHandler) ListTransactions(c *gin.Context) {
	var filter store.Filter

	if v := c.Query("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		filter.AccountID = &id
	}
	if v := c.Query("match_status"); v != "" {
		// `excluded` is accepted as a pseudo-status for the review UI.
		if v == "excluded" {
			excluded := true
			filter.Excluded = &excluded
		} else {
			status := models.MatchStatus(v)
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown match status"})
				return
			}
			filter.MatchStatus = &status
		}
	}
	if v := c.Query("category"); v != "" {
		category := models.Category(v)
		if !category.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}
		filter.Category = &category
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		filter.To = &to
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	txs, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": txs, "count": len(txs)})
}

func (h *BankHandler) Categorize(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Category string `json:"category"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tx, err := h.store.Categorize(c.Request.Context(), txID, models.Category(payload.Category))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, models.ErrUnknownCategory):
			status = http.StatusBadRequest
		case errors.Is(err, store.ErrUnknownTransaction):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *BankHandler) BulkCategorize(c *gin.Context) {
	var payload struct {
		TransactionIDs []string `json:"transaction_ids"`
		Category       string   `json:"category"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ids := make([]uuid.UUID, 0, len(payload.TransactionIDs))
	for _, raw := range payload.TransactionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID " + raw})
			return
		}
		ids = append(ids, id)
	}

	result, err := h.store.BulkCategorize(c.Request.Context(), ids, models.Category(payload.Category))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrUnknownCategory) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *BankHandler) SetExcluded(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		Excluded bool `json:"excluded"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tx, err := h.store.SetExcluded(c.Request.Context(), txID, payload.Excluded)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTransaction) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// ManualMatch links a transaction to an operator-chosen expected payment,
// the acting half of the suggestions endpoint.
func (h *BankHandler) ManualMatch(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	var payload struct {
		LedgerEntryID string `json:"ledger_entry_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	entryID, err := uuid.Parse(payload.LedgerEntryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ledger entry ID"})
		return
	}

	tx, err := h.engine.ManualMatch(c.Request.Context(), txID, entryID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrUnknownTransaction):
			status = http.StatusNotFound
		case errors.Is(err, ledger.ErrUnknownEntry):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrInvalidTransition):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *BankHandler) Unmatch(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	tx, err := h.engine.Unmatch(c.Request.Context(), txID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrUnknownTransaction):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrInvalidTransition):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *BankHandler) SuggestMatches(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	limit := 5
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	suggestions, err := h.engine.Suggest(c.Request.Context(), txID, limit)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTransaction) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *BankHandler) Summary(c *gin.Context) {
	var accountID *uuid.UUID
	if v := c.Query("account_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account ID"})
			return
		}
		accountID = &id
	}

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		from = &parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		to = &parsed
	}

	summary, err := h.store.SummaryByCategory(c.Request.Context(), accountID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *BankHandler) GetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	batch, err := h.store.Batch(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, store.ErrUnknownBatch) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch})
}

func (h *BankHandler) AuditTrail(c *gin.Context) {
	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	trail, err := h.store.AuditTrail(c.Request.Context(), txID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trail": trail})
}
