package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
)

// versioned groups the operations every date-effective HR record supports.
// Routes address a record version by id for writes and the business key
// (code or employee number) for reads.
type versioned[T any, N any, C any] struct {
	create     func(context.Context, *N) (*T, error)
	update     func(context.Context, int, *C) (*T, error)
	deactivate func(context.Context, int, *time.Time) (*T, error)
	getOn      func(context.Context, string, time.Time) (*T, error)
	list       func(context.Context, *time.Time) ([]*T, error)
	history    func(context.Context, string) ([]*T, error)
}

func (v versioned[T, N, C]) register(g *gin.RouterGroup, path string) {
	g.GET(path, v.listHandler)
	g.POST(path, v.createHandler)
	g.GET(path+"/:key", v.getOnHandler)
	g.GET(path+"/:key/history", v.historyHandler)
	g.PUT(path+"/:key", v.updateHandler)
	g.POST(path+"/:key/deactivate", v.deactivateHandler)
}

func (v versioned[T, N, C]) listHandler(c *gin.Context) {
	on, valid := queryDate(c, "active_on")
	if !valid {
		return
	}
	rows, err := v.list(c.Request.Context(), on)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func (v versioned[T, N, C]) createHandler(c *gin.Context) {
	var in N
	if !bind(c, &in) {
		return
	}
	rec, err := v.create(c.Request.Context(), &in)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, rec)
}

// getOnHandler returns the version of key effective on ?on=, default today.
func (v versioned[T, N, C]) getOnHandler(c *gin.Context) {
	on, valid := queryDate(c, "on")
	if !valid {
		return
	}
	date := time.Now()
	if on != nil {
		date = *on
	}
	rec, err := v.getOn(c.Request.Context(), c.Param("key"), date)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

func (v versioned[T, N, C]) historyHandler(c *gin.Context) {
	rows, err := v.history(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func (v versioned[T, N, C]) updateHandler(c *gin.Context) {
	id, valid := pathId(c, "key")
	if !valid {
		return
	}
	var in C
	if !bind(c, &in) {
		return
	}
	rec, err := v.update(c.Request.Context(), id, &in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

func (v versioned[T, N, C]) deactivateHandler(c *gin.Context) {
	id, valid := pathId(c, "key")
	if !valid {
		return
	}
	var in endDateInput
	if !bindOptional(c, &in) {
		return
	}
	rec, err := v.deactivate(c.Request.Context(), id, in.EndDate)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

func registerHR(g *gin.RouterGroup) {
	versioned[models.Organization, models.NewOrganization, models.OrganizationChanges]{
		create:     models.CreateOrganization,
		update:     models.UpdateOrganization,
		deactivate: models.DeactivateOrganization,
		getOn:      models.GetOrganizationOn,
		list:       models.ListOrganizations,
		history:    models.OrganizationHistory,
	}.register(g, "/organizations")

	versioned[models.Job, models.NewJob, models.JobChanges]{
		create:     models.CreateJob,
		update:     models.UpdateJob,
		deactivate: models.DeactivateJob,
		getOn:      models.GetJobOn,
		list:       models.ListJobs,
		history:    models.JobHistory,
	}.register(g, "/jobs")

	versioned[models.Position, models.NewPosition, models.PositionChanges]{
		create:     models.CreatePosition,
		update:     models.UpdatePosition,
		deactivate: models.DeactivatePosition,
		getOn:      models.GetPositionOn,
		list:       models.ListPositions,
		history:    models.PositionHistory,
	}.register(g, "/positions")

	versioned[models.Person, models.NewPerson, models.PersonChanges]{
		create:     models.CreatePerson,
		update:     models.UpdatePerson,
		deactivate: models.DeactivatePerson,
		getOn:      models.GetPersonOn,
		list:       models.ListPeople,
		history:    models.PersonHistory,
	}.register(g, "/people")
}
