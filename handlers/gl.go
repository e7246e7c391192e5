package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/middlewares"
	"github.com/mmdatafocus/erp_backend/models"
)

func listSegmentTypes(c *gin.Context) {
	types, err := models.ListSegmentTypes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, types)
}

func getSegmentType(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	st, err := models.GetSegmentType(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func createSegmentType(c *gin.Context) {
	var in models.NewSegmentType
	if !bind(c, &in) {
		return
	}
	st, err := models.CreateSegmentType(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, st)
}

func updateSegmentType(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewSegmentType
	if !bind(c, &in) {
		return
	}
	st, err := models.UpdateSegmentType(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func deleteSegmentType(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	st, err := models.DeleteSegmentType(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

func listSegments(c *gin.Context) {
	typeId, valid := queryInt(c, "segment_type_id")
	if !valid {
		return
	}
	active, valid := queryBool(c, "active")
	if !valid {
		return
	}
	segs, err := models.ListSegments(c.Request.Context(), typeId, active != nil && *active)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, segs)
}

func getSegment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	ctx := c.Request.Context()
	seg, err := models.GetSegment(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	path, err := models.SegmentFullPath(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"segment": seg, "full_path": path})
}

func segmentChildren(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	children, err := models.SegmentChildren(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, children)
}

func createSegment(c *gin.Context) {
	var in models.NewSegment
	if !bind(c, &in) {
		return
	}
	seg, err := models.CreateSegment(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, seg)
}

func updateSegment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewSegment
	if !bind(c, &in) {
		return
	}
	seg, err := models.UpdateSegment(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, seg)
}

func deleteSegment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	seg, err := models.DeleteSegment(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, seg)
}

type combinationInput struct {
	Segments    []models.SegmentPair `json:"segments" binding:"required"`
	Description string               `json:"description"`
}

// resolveCombination finds the combination for the pairs, creating it on
// first use.
func resolveCombination(c *gin.Context) {
	var in combinationInput
	if !bind(c, &in) {
		return
	}
	comb, isNew, err := models.GetOrCreateCombination(c.Request.Context(), nil, in.Segments, in.Description)
	if err != nil {
		fail(c, err)
		return
	}
	comb = withSegments(c.Request.Context(), comb)
	if isNew {
		created(c, comb)
		return
	}
	ok(c, comb)
}

func findCombination(c *gin.Context) {
	var in combinationInput
	if !bind(c, &in) {
		return
	}
	comb, err := models.FindCombination(c.Request.Context(), nil, in.Segments)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, withSegments(c.Request.Context(), comb))
}

// withSegments fills the segment of every detail that was not preloaded.
func withSegments(ctx context.Context, comb *models.SegmentCombination) *models.SegmentCombination {
	if comb == nil {
		return nil
	}
	var ids []int
	for _, d := range comb.Details {
		if d.Segment == nil {
			ids = append(ids, d.SegmentId)
		}
	}
	if len(ids) == 0 {
		return comb
	}
	segs, _ := middlewares.GetSegments(ctx, ids)
	byId := make(map[int]*models.Segment, len(segs))
	for _, s := range segs {
		if s != nil {
			byId[s.ID] = s
		}
	}
	for i := range comb.Details {
		if comb.Details[i].Segment == nil {
			comb.Details[i].Segment = byId[comb.Details[i].SegmentId]
		}
	}
	return comb
}

func getCombination(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	comb, err := models.GetCombination(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, comb)
}

func listCombinations(c *gin.Context) {
	segmentId, valid := queryInt(c, "segment_id")
	if !valid {
		return
	}
	limit, valid := queryInt(c, "limit")
	if !valid {
		return
	}
	combs, err := models.ListCombinations(c.Request.Context(), segmentId, limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, combs)
}

func updateCombination(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	fail(c, models.UpdateCombination(c.Request.Context(), id))
}

func deleteCombination(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	fail(c, models.DeleteCombination(c.Request.Context(), id))
}

// journalView adds the combination key of every line.
type journalView struct {
	*models.JournalEntry
	Combinations map[int]string `json:"combinations"`
}

func viewJournal(c *gin.Context, e *models.JournalEntry) journalView {
	ids := make([]int, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, l.CombinationId)
	}
	keys := make(map[int]string, len(ids))
	if len(ids) > 0 {
		combs, _ := middlewares.GetCombinations(c.Request.Context(), ids)
		for _, comb := range combs {
			if comb != nil {
				keys[comb.ID] = comb.CombinationKey
			}
		}
	}
	return journalView{JournalEntry: e, Combinations: keys}
}

func ledgerFilterFrom(c *gin.Context) (models.LedgerFilter, bool) {
	var f models.LedgerFilter
	if c.Request.Method == http.MethodPost {
		if !bind(c, &f) {
			return f, false
		}
		return f, true
	}
	var valid bool
	if f.FromDate, valid = queryDate(c, "from"); !valid {
		return f, false
	}
	if f.ToDate, valid = queryDate(c, "to"); !valid {
		return f, false
	}
	if f.Posted, valid = queryBool(c, "posted"); !valid {
		return f, false
	}
	if f.Limit, valid = queryInt(c, "limit"); !valid {
		return f, false
	}
	f.After = queryString(c, "after")
	return f, true
}

func listJournalEntries(c *gin.Context) {
	f, valid := ledgerFilterFrom(c)
	if !valid {
		return
	}
	entries, page, err := models.ListJournalEntries(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": page})
}

func listGeneralLedger(c *gin.Context) {
	f, valid := ledgerFilterFrom(c)
	if !valid {
		return
	}
	rows, page, err := models.ListGeneralLedger(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": page})
}

func getJournalEntry(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	e, err := models.GetJournalEntry(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewJournal(c, e))
}

func createJournalEntry(c *gin.Context) {
	var in models.NewJournalEntry
	if !bind(c, &in) {
		return
	}
	e, err := models.CreateJournalEntry(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, viewJournal(c, e))
}

func updateJournalEntry(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewJournalEntry
	if !bind(c, &in) {
		return
	}
	e, err := models.UpdateJournalEntry(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewJournal(c, e))
}

func deleteJournalEntry(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	e, err := models.DeleteJournalEntry(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

func addJournalLine(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	var in models.NewJournalLine
	if !bind(c, &in) {
		return
	}
	e, err := models.AddJournalLine(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewJournal(c, e))
}

func deleteJournalLine(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	lineId, valid := pathId(c, "lineId")
	if !valid {
		return
	}
	e, err := models.DeleteJournalLine(c.Request.Context(), id, lineId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewJournal(c, e))
}

func postJournalEntry(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	e, err := models.PostJournalEntry(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, viewJournal(c, e))
}

func listDefaultCombinations(c *gin.Context) {
	rows, err := models.ListDefaultCombinations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func upsertDefaultCombination(c *gin.Context) {
	var in models.NewDefaultCombination
	if !bind(c, &in) {
		return
	}
	d, isNew, err := models.CreateOrUpdateDefault(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	if isNew {
		created(c, d)
		return
	}
	ok(c, d)
}

func getDefaultCombination(c *gin.Context) {
	txType := models.TransactionType(c.Param("type"))
	comb, err := models.GetSegmentDetails(c.Request.Context(), txType)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, comb)
}

func checkDefaultCombinations(c *gin.Context) {
	rows, err := models.CheckAllDefaultsValidity(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func listPeriods(c *gin.Context) {
	year, valid := queryInt(c, "fiscal_year")
	if !valid {
		return
	}
	periods, err := models.ListPeriods(c.Request.Context(), year)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, periods)
}

func createPeriod(c *gin.Context) {
	var in models.NewPeriod
	if !bind(c, &in) {
		return
	}
	p, err := models.CreatePeriod(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, p)
}

func generatePeriods(c *gin.Context) {
	var in models.GeneratePeriodsInput
	if !bind(c, &in) {
		return
	}
	periods, err := models.GeneratePeriods(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, periods)
}

func setPeriodState(open bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathId(c, "id")
		if !valid {
			return
		}
		module := models.PeriodModule(c.Param("module"))
		if !module.IsValid() {
			badRequest(c, "invalid module %s", module)
			return
		}
		var (
			p   *models.Period
			err error
		)
		if open {
			p, err = models.OpenPeriod(c.Request.Context(), id, module)
		} else {
			p, err = models.ClosePeriod(c.Request.Context(), id, module)
		}
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

func listNumberSeries(c *gin.Context) {
	rows, err := models.ListTransactionNumberSeries(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func updateNumberSeries(c *gin.Context) {
	var in models.NewTransactionNumberSeries
	if !bind(c, &in) {
		return
	}
	s, err := models.UpdateTransactionNumberSeries(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}
