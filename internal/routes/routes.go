package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "sda-reconciliation-backend/internal/handlers"
	"sda-reconciliation-backend/internal/ledger"
	"sda-reconciliation-backend/internal/services/importer"
	"sda-reconciliation-backend/internal/services/matching"
	"sda-reconciliation-backend/internal/store"
	"sda-reconciliation-backend/internal/xero"
)

// RegisterRoutes wires the reconciliation services onto the router.
// xeroClient may be nil when no accounting-platform integration is
// configured; the sync route is only exposed when it is present.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, policy matching.Policy, xeroClient xero.Client) {
	txStore := store.New(db)
	ledgerStore := ledger.NewStore(db)

	importSvc := importer.NewService(txStore)
	engine := matching.NewEngine(txStore, ledgerStore, policy)

	var syncer *xero.Syncer
	if xeroClient != nil {
		syncer = xero.NewSyncer(xeroClient, importSvc)
	}

	bankHandler := handler.NewBankHandler(txStore, importSvc, engine, syncer)

	api := r.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	accounts := api.Group("/accounts")
	accounts.POST("", bankHandler.CreateAccount)
	accounts.GET("", bankHandler.ListAccounts)

	bank := api.Group("/bank")
	bank.POST("/import", bankHandler.ImportStatement)
	bank.GET("/batches/:id", bankHandler.GetBatch)
	bank.GET("/summary", bankHandler.Summary)

	bank.POST("/accounts/:id/auto-match", bankHandler.AutoMatch)
	if syncer != nil {
		bank.POST("/accounts/:id/sync", bankHandler.SyncStatement)
	}

	tx := bank.Group("/transactions")
	tx.GET("", bankHandler.ListTransactions)
	tx.POST("/bulk-category", bankHandler.BulkCategorize)
	tx.POST("/:id/category", bankHandler.Categorize)
	tx.POST("/:id/exclude", bankHandler.SetExcluded)
	tx.POST("/:id/match", bankHandler.ManualMatch)
	tx.POST("/:id/unmatch", bankHandler.Unmatch)
	tx.GET("/:id/suggestions", bankHandler.SuggestMatches)
	tx.GET("/:id/audit", bankHandler.AuditTrail)
}
