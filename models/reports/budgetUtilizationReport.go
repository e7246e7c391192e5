package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type BudgetUtilizationRow struct {
	SegmentId   int             `json:"segment_id"`
	SegmentCode string          `json:"segment_code"`
	SegmentName string          `json:"segment_name"`
	Budget      decimal.Decimal `json:"budget"`
	Committed   decimal.Decimal `json:"committed"`
	Encumbered  decimal.Decimal `json:"encumbered"`
	Actual      decimal.Decimal `json:"actual"`
	Available   decimal.Decimal `json:"available"`
	Utilization decimal.Decimal `json:"utilization"`
}

func (r BudgetUtilizationRow) GetCellValues() []interface{} {
	return []interface{}{
		r.SegmentCode, r.SegmentName,
		r.Budget.StringFixed(2), r.Committed.StringFixed(2), r.Encumbered.StringFixed(2),
		r.Actual.StringFixed(2), r.Available.StringFixed(2), r.Utilization.StringFixed(2),
	}
}

var BudgetUtilizationHeadings = []string{"Segment", "Name", "Budget", "Committed", "Encumbered", "Actual", "Available", "Utilization %"}

// GetBudgetUtilization lists every budget line of a header with its consumed
// and available amounts. Not cached: balances move with every approval.
func GetBudgetUtilization(ctx context.Context, headerId int) ([]*BudgetUtilizationRow, error) {
	started := time.Now()
	defer logSlowReport(ctx, "BudgetUtilization", started, logrus.Fields{"header_id": headerId})

	db := config.GetDB().WithContext(ctx)
	var header models.BudgetHeader
	if err := db.First(&header, headerId).Error; err != nil {
		return nil, err
	}
	var amounts []models.BudgetAmount
	if err := db.Where("header_id = ?", headerId).Order("segment_id").Find(&amounts).Error; err != nil {
		return nil, err
	}
	segIds := make([]int, 0, len(amounts))
	for _, a := range amounts {
		segIds = append(segIds, a.SegmentId)
	}
	var segs []models.Segment
	if len(segIds) > 0 {
		if err := db.Where("id IN ?", segIds).Find(&segs).Error; err != nil {
			return nil, err
		}
	}
	return buildBudgetUtilization(amounts, segs), nil
}

func buildBudgetUtilization(amounts []models.BudgetAmount, segs []models.Segment) []*BudgetUtilizationRow {
	byId := make(map[int]models.Segment, len(segs))
	for _, s := range segs {
		byId[s.ID] = s
	}
	rows := make([]*BudgetUtilizationRow, 0, len(amounts))
	for _, a := range amounts {
		seg := byId[a.SegmentId]
		rows = append(rows, &BudgetUtilizationRow{
			SegmentId:   a.SegmentId,
			SegmentCode: seg.Code,
			SegmentName: seg.Alias,
			Budget:      a.TotalBudget(),
			Committed:   a.Committed,
			Encumbered:  a.Encumbered,
			Actual:      a.Actual,
			Available:   a.Available(),
			Utilization: a.Utilization(),
		})
	}
	return rows
}
