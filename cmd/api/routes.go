package main

import (
	"database/sql"
	"net/http"
	"time"

	"ledger-config/internal/bulk"
	"ledger-config/internal/catalog"
	"ledger-config/internal/httpapi"
	"ledger-config/internal/metrics"
	"ledger-config/internal/process"
	"ledger-config/internal/rbac"
	"ledger-config/pkg/utils"

	"github.com/gin-gonic/gin"
)

type bulkOptions struct {
	engine         *bulk.Engine
	cap            *utils.ConcurrencyCap
	maxUploadBytes int64
}

type routeDeps struct {
	db        *sql.DB
	authMW    gin.HandlerFunc
	catalog   *catalog.Catalog
	processes *process.Service
	bulk      bulkOptions
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	api.Use(d.authMW)

	read := rbac.RequireAnyRole(rbac.Readers...)
	write := rbac.RequireAnyRole(rbac.Writers...)
	opts := httpapi.BulkOptions{Engine: d.bulk.engine, Cap: d.bulk.cap, MaxUploadBytes: d.bulk.maxUploadBytes}

	cat := d.catalog
	httpapi.NewEntityHandlers(cat.HolidayCalendars, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.Currencies, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.AccountingCalendars, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.CostBasisRules, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.LedgerLookups, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.TransactionCodes, opts).Register(api, read, write)
	httpapi.NewEntityHandlers(cat.PriceTables, opts).Register(api, read, write)

	httpapi.ProcessHandlers{Processes: d.processes}.Register(api, read)
}
