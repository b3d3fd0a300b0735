package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/fintrack/export"
	"github.com/rustyeddy/fintrack/ledger"
	"github.com/rustyeddy/fintrack/portfolio"
	"github.com/rustyeddy/fintrack/store"
)

func (s *Server) today() string {
	return s.now().Format(store.DateLayout)
}

// ---- accounts ----

type accountReq struct {
	Name           string  `json:"name" binding:"required"`
	Type           string  `json:"type" binding:"required"`
	Currency       string  `json:"currency"`
	Category       string  `json:"category"`
	InitialBalance float64 `json:"initial_balance"`
}

func (s *Server) createAccount(c *gin.Context) {
	var req accountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	a, err := s.ledger.CreateAccount(c.Request.Context(), owner(c), ledger.AccountInput{
		Name:           req.Name,
		Type:           store.AccountType(req.Type),
		Currency:       req.Currency,
		Category:       req.Category,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

func (s *Server) listAccounts(c *gin.Context) {
	list := s.ledger.Accounts
	if c.Query("archived") == "true" {
		list = s.ledger.AllAccounts
	}
	accts, err := list(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, accts)
}

func (s *Server) getAccount(c *gin.Context) {
	a, err := s.ledger.Account(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

type accountPatchReq struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
	Category *string `json:"category"`
}

func (s *Server) updateAccount(c *gin.Context) {
	var req accountPatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	a, err := s.ledger.UpdateAccount(c.Request.Context(), owner(c), c.Param("id"), ledger.AccountPatch{
		Name:     req.Name,
		Currency: req.Currency,
		Category: req.Category,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (s *Server) archiveAccount(c *gin.Context) {
	if err := s.ledger.ArchiveAccount(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"archived": true})
}

func (s *Server) auditAccount(c *gin.Context) {
	a, err := s.ledger.AuditAccount(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"account_id": a.AccountID,
		"expected":   a.Expected,
		"actual":     a.Actual,
		"drift":      a.Drift(),
		"ok":         a.OK(),
	})
}

type marketValueReq struct {
	Value *float64 `json:"value" binding:"required"`
}

func (s *Server) setMarketValue(c *gin.Context) {
	var req marketValueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.portfolio.SetMarketValue(c.Request.Context(), owner(c), c.Param("id"), *req.Value); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"value": *req.Value})
}

// ---- transactions ----

type transactionReq struct {
	Type          string   `json:"type" binding:"required"`
	Category      string   `json:"category"`
	Amount        float64  `json:"amount"`
	AccountID     string   `json:"account_id" binding:"required"`
	Date          string   `json:"date"`
	AllocationPct *float64 `json:"allocation_pct"`
	Note          string   `json:"note"`
}

func (s *Server) createTransaction(c *gin.Context) {
	var req transactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Date == "" {
		req.Date = s.today()
	}
	t, err := s.ledger.Create(c.Request.Context(), owner(c), ledger.TxInput{
		Type:          store.TxType(req.Type),
		Category:      req.Category,
		Amount:        req.Amount,
		AccountID:     req.AccountID,
		Date:          req.Date,
		AllocationPct: req.AllocationPct,
		Note:          req.Note,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

func (s *Server) listTransactions(c *gin.Context) {
	txs, err := s.ledger.List(c.Request.Context(), store.TransactionFilter{
		Owner:     owner(c),
		From:      c.Query("from"),
		To:        c.Query("to"),
		Type:      store.TxType(c.Query("type")),
		AccountID: c.Query("account"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, txs)
}

func (s *Server) getTransaction(c *gin.Context) {
	t, err := s.ledger.Get(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

type transactionPatchReq struct {
	Type            *string  `json:"type"`
	Category        *string  `json:"category"`
	Amount          *float64 `json:"amount"`
	AccountID       *string  `json:"account_id"`
	Date            *string  `json:"date"`
	AllocationPct   *float64 `json:"allocation_pct"`
	ClearAllocation bool     `json:"clear_allocation"`
	Note            *string  `json:"note"`
}

func (s *Server) updateTransaction(c *gin.Context) {
	var req transactionPatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p := ledger.TxPatch{
		Category:        req.Category,
		Amount:          req.Amount,
		AccountID:       req.AccountID,
		Date:            req.Date,
		AllocationPct:   req.AllocationPct,
		ClearAllocation: req.ClearAllocation,
		Note:            req.Note,
	}
	if req.Type != nil {
		typ := store.TxType(*req.Type)
		p.Type = &typ
	}
	t, err := s.ledger.Update(c.Request.Context(), owner(c), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (s *Server) deleteTransaction(c *gin.Context) {
	if err := s.ledger.Delete(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

// ---- savings ----

func (s *Server) savingsSummary(c *gin.Context) {
	sum, err := s.savings.Summary(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"balance":  sum.Balance,
		"in_goals": sum.InGoals,
		"goals":    sum.Goals,
		"total":    sum.Total(),
	})
}

func (s *Server) listAllocations(c *gin.Context) {
	list, err := s.savings.Allocations(c.Request.Context(), store.AllocationFilter{
		Owner:  owner(c),
		From:   c.Query("from"),
		To:     c.Query("to"),
		Source: store.AllocationSource(c.Query("source")),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

type depositReq struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
}

func (s *Server) deposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Date == "" {
		req.Date = s.today()
	}
	a, err := s.savings.CreateAllocation(c.Request.Context(), owner(c), "", req.Amount, req.Date, store.SourceManual)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

type goalReq struct {
	Title        string  `json:"title" binding:"required"`
	TargetAmount float64 `json:"target_amount"`
	TargetDate   string  `json:"target_date" binding:"required"`
}

func (s *Server) createGoal(c *gin.Context) {
	var req goalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	g, err := s.savings.CreateGoal(c.Request.Context(), owner(c), req.Title, req.TargetAmount, req.TargetDate)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, g)
}

func (s *Server) listGoals(c *gin.Context) {
	goals, err := s.savings.Goals(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, goals)
}

func (s *Server) getGoal(c *gin.Context) {
	g, err := s.savings.Goal(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

type amountReq struct {
	Amount float64 `json:"amount"`
}

func (s *Server) allocateToGoal(c *gin.Context) {
	var req amountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	g, err := s.savings.AllocateToGoal(c.Request.Context(), owner(c), c.Param("id"), req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, g)
}

func (s *Server) deleteGoal(c *gin.Context) {
	returned, err := s.savings.DeleteGoal(c.Request.Context(), owner(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"returned": returned})
}

// ---- portfolio ----

type tradeReq struct {
	AccountID string  `json:"account_id" binding:"required"`
	Symbol    string  `json:"symbol" binding:"required"`
	Type      string  `json:"type" binding:"required"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Date      string  `json:"date"`
	Note      string  `json:"note"`
}

func (s *Server) addTrade(c *gin.Context) {
	var req tradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Date == "" {
		req.Date = s.today()
	}
	t, err := s.portfolio.AddTrade(c.Request.Context(), owner(c), portfolio.TradeInput{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Type:      store.TradeType(req.Type),
		Quantity:  req.Quantity,
		Price:     req.Price,
		Date:      req.Date,
		Note:      req.Note,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

func (s *Server) listTrades(c *gin.Context) {
	trades, err := s.portfolio.Trades(c.Request.Context(), store.TradeFilter{
		Owner:     owner(c),
		AccountID: c.Query("account"),
		Symbol:    c.Query("symbol"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, trades)
}

type tradePatchReq struct {
	Type     *string  `json:"type"`
	Quantity *float64 `json:"quantity"`
	Price    *float64 `json:"price"`
	Date     *string  `json:"date"`
	Note     *string  `json:"note"`
}

func (s *Server) updateTrade(c *gin.Context) {
	var req tradePatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p := portfolio.TradePatch{Quantity: req.Quantity, Price: req.Price, Date: req.Date, Note: req.Note}
	if req.Type != nil {
		typ := store.TradeType(*req.Type)
		p.Type = &typ
	}
	t, err := s.portfolio.UpdateTrade(c.Request.Context(), owner(c), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

func (s *Server) deleteTrade(c *gin.Context) {
	if err := s.portfolio.DeleteTrade(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) listHoldings(c *gin.Context) {
	hs, err := s.portfolio.Holdings(c.Request.Context(), owner(c), c.Query("account"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, hs)
}

type recalcReq struct {
	AccountID string `json:"account_id" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
}

func (s *Server) recalculate(c *gin.Context) {
	var req recalcReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	h, err := s.portfolio.Recalculate(c.Request.Context(), owner(c), req.AccountID, req.Symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, h)
}

type overrideReq struct {
	Quantity    float64 `json:"quantity"`
	AverageCost float64 `json:"average_cost"`
}

func (s *Server) overrideHolding(c *gin.Context) {
	var req overrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	h, err := s.portfolio.OverrideHolding(c.Request.Context(), owner(c), c.Param("id"), req.Quantity, req.AverageCost)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, h)
}

func (s *Server) deleteHolding(c *gin.Context) {
	if err := s.portfolio.DeleteHolding(c.Request.Context(), owner(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) portfolioSummary(c *gin.Context) {
	sum, err := s.portfolio.Summary(c.Request.Context(), owner(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"holdings":          sum.Holdings,
		"cost_basis":        sum.CostBasis,
		"total_realized_pl": sum.TotalRealizedPL,
	})
}

// ---- export ----

func (s *Server) report(c *gin.Context) (export.Report, bool) {
	r, err := export.Collect(c.Request.Context(), s.ledger, s.savings, s.portfolio, owner(c), c.Query("from"), c.Query("to"))
	if err != nil {
		s.fail(c, err)
		return export.Report{}, false
	}
	return r, true
}

func attachment(c *gin.Context, contentType, name string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Status(http.StatusOK)
}

func (s *Server) exportCSV(c *gin.Context) {
	r, found := s.report(c)
	if !found {
		return
	}
	attachment(c, "text/csv", fmt.Sprintf("transactions_%s.csv", s.now().Format("20060102")))
	if err := export.WriteTransactionsCSV(c.Writer, r); err != nil {
		s.log.Error("http: csv export", "request_id", c.GetString(keyRequestID), "err", err)
	}
}

func (s *Server) exportXLSX(c *gin.Context) {
	r, found := s.report(c)
	if !found {
		return
	}
	attachment(c, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		fmt.Sprintf("fintrack_%s.xlsx", s.now().Format("20060102")))
	if err := export.WriteXLSX(c.Writer, r); err != nil {
		s.log.Error("http: xlsx export", "request_id", c.GetString(keyRequestID), "err", err)
	}
}
