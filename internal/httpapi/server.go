// Package httpapi exposes the ledger, savings and portfolio services over
// HTTP with gin. Handlers parse and bind payloads; every business rule is
// enforced again by the services.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/ledger"
	"github.com/rustyeddy/fintrack/portfolio"
	"github.com/rustyeddy/fintrack/savings"
)

const (
	HeaderRequestID = "X-Request-ID"
	// HeaderOwner selects the owner a request acts for. Without it the
	// server's default owner is used.
	HeaderOwner = "X-Owner"

	keyRequestID = "request_id"
	keyOwner     = "owner"
)

// Error codes carried in error responses.
const (
	CodeOK                   = 0
	CodeValidation           = 40001
	CodeNotFound             = 40401
	CodeInsufficientFunds    = 40901
	CodeInsufficientHoldings = 40902
	CodeConflict             = 40903
	CodeInternal             = 50002
	CodeStorageUnavailable   = 50301
)

type Server struct {
	ledger    *ledger.Ledger
	savings   *savings.Service
	portfolio *portfolio.Engine
	log       *slog.Logger
	owner     string
	now       func() time.Time
}

type Config struct {
	DefaultOwner string
	Mode         string // gin mode
}

func New(cfg Config, l *ledger.Ledger, sav *savings.Service, pf *portfolio.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	return &Server{
		ledger:    l,
		savings:   sav,
		portfolio: pf,
		log:       log,
		owner:     cfg.DefaultOwner,
		now:       time.Now,
	}
}

// Handler builds the gin engine with every route mounted under /api/v1.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.ownerFromHeader())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	api.POST("/accounts", s.createAccount)
	api.GET("/accounts", s.listAccounts)
	api.GET("/accounts/:id", s.getAccount)
	api.PATCH("/accounts/:id", s.updateAccount)
	api.POST("/accounts/:id/archive", s.archiveAccount)
	api.GET("/accounts/:id/audit", s.auditAccount)
	api.PUT("/accounts/:id/market-value", s.setMarketValue)

	api.POST("/transactions", s.createTransaction)
	api.GET("/transactions", s.listTransactions)
	api.GET("/transactions/:id", s.getTransaction)
	api.PATCH("/transactions/:id", s.updateTransaction)
	api.DELETE("/transactions/:id", s.deleteTransaction)

	api.GET("/savings", s.savingsSummary)
	api.GET("/savings/allocations", s.listAllocations)
	api.POST("/savings/deposits", s.deposit)

	api.POST("/goals", s.createGoal)
	api.GET("/goals", s.listGoals)
	api.GET("/goals/:id", s.getGoal)
	api.POST("/goals/:id/allocate", s.allocateToGoal)
	api.DELETE("/goals/:id", s.deleteGoal)

	api.POST("/trades", s.addTrade)
	api.GET("/trades", s.listTrades)
	api.PATCH("/trades/:id", s.updateTrade)
	api.DELETE("/trades/:id", s.deleteTrade)

	api.GET("/holdings", s.listHoldings)
	api.POST("/holdings/recalculate", s.recalculate)
	api.PUT("/holdings/:id", s.overrideHolding)
	api.DELETE("/holdings/:id", s.deleteHolding)
	api.GET("/portfolio/summary", s.portfolioSummary)

	api.GET("/export/transactions.csv", s.exportCSV)
	api.GET("/export/report.xlsx", s.exportXLSX)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(keyRequestID, rid)
		c.Header(HeaderRequestID, rid)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		s.log.Log(c.Request.Context(), level, "http: request",
			"request_id", rid,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"owner", c.GetString(keyOwner),
		)
	}
}

func (s *Server) ownerFromHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader(HeaderOwner)
		if owner == "" {
			owner = s.owner
		}
		c.Set(keyOwner, owner)
		c.Next()
	}
}

func owner(c *gin.Context) string {
	return c.GetString(keyOwner)
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

// classify maps engine errors onto an HTTP status and error code.
func classify(err error) (status, code int) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errs.ErrInsufficientFunds):
		return http.StatusConflict, CodeInsufficientFunds
	case errors.Is(err, errs.ErrInsufficientHoldings):
		return http.StatusConflict, CodeInsufficientHoldings
	case errors.Is(err, errs.ErrConcurrencyConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, errs.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, CodeStorageUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	body := gin.H{
		"code":      code,
		"message":   err.Error(),
		"retryable": errs.Retryable(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("http: request failed", "request_id", c.GetString(keyRequestID), "err", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a payload that could not be bound.
func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"code":      CodeValidation,
		"message":   err.Error(),
		"retryable": false,
	})
}
