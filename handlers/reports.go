package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models/reports"
)

func wantsExcel(c *gin.Context) bool {
	return c.Query("format") == "xlsx"
}

func sendExcel[T reports.ExcelExporter](c *gin.Context, filename, sheet string, headings []string, rows []T) {
	var buf bytes.Buffer
	if err := reports.WriteExcel(&buf, sheet, headings, rows); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, reports.ExcelContentType, buf.Bytes())
}

// trialBalance answers GET /reports/trial-balance?from=&to=&currency=.
// from defaults to the first of the current year and to defaults to today.
func trialBalance(c *gin.Context) {
	from, valid := queryDate(c, "from")
	if !valid {
		return
	}
	to, valid := queryDate(c, "to")
	if !valid {
		return
	}
	now := time.Now().UTC()
	if to == nil {
		to = &now
	}
	if from == nil {
		start := time.Date(to.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		from = &start
	}
	tb, err := reports.GetTrialBalance(c.Request.Context(), *from, *to, c.Query("currency"))
	if err != nil {
		fail(c, err)
		return
	}
	if wantsExcel(c) {
		sendExcel(c, "trial_balance.xlsx", "Trial Balance", reports.TrialBalanceHeadings, tb.Rows)
		return
	}
	ok(c, tb)
}

func budgetUtilization(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	rows, err := reports.GetBudgetUtilization(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if wantsExcel(c) {
		sendExcel(c, "budget_utilization.xlsx", "Budget", reports.BudgetUtilizationHeadings, rows)
		return
	}
	ok(c, rows)
}
