package middlewares

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

type ctxKey string

const loadersKey = ctxKey("dataloaders")

// Loaders batch id lookups made while rendering one request.
type Loaders struct {
	CombinationLoader *dataloader.Loader[int, *models.SegmentCombination]
	SegmentLoader     *dataloader.Loader[int, *models.Segment]
	UserLoader        *dataloader.Loader[int, *models.User]
}

func NewLoaders() *Loaders {
	return &Loaders{
		CombinationLoader: dataloader.NewBatchedLoader(batchBy(models.GetCombinationsByIds, func(c *models.SegmentCombination) int { return c.ID }),
			dataloader.WithWait[int, *models.SegmentCombination](time.Millisecond)),
		SegmentLoader: dataloader.NewBatchedLoader(batchBy(models.GetSegmentsByIds, func(s *models.Segment) int { return s.ID }),
			dataloader.WithWait[int, *models.Segment](time.Millisecond)),
		UserLoader: dataloader.NewBatchedLoader(batchBy(models.GetUsersByIds, func(u *models.User) int { return u.ID }),
			dataloader.WithWait[int, *models.User](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithLoaders(c.Request.Context(), NewLoaders()))
		c.Next()
	}
}

func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, l)
}

// For returns the request's loaders, or fresh ones outside a request.
func For(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return l
	}
	return NewLoaders()
}

// batchBy adapts a by-ids fetch to a batch function. Results come back in
// key order; missing ids resolve to a not-found error.
func batchBy[T any](fetch func(context.Context, []int) ([]*T, error), idOf func(*T) int) dataloader.BatchFunc[int, *T] {
	return func(ctx context.Context, ids []int) []*dataloader.Result[*T] {
		rows, err := fetch(ctx, ids)
		if err != nil {
			return handleError[*T](len(ids), err)
		}
		return generateLoaderResults(rows, ids, idOf)
	}
}

// handleError repeats err for every requested key.
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

func generateLoaderResults[T any](rows []*T, ids []int, idOf func(*T) int) []*dataloader.Result[*T] {
	byId := make(map[int]*T, len(rows))
	for _, r := range rows {
		byId[idOf(r)] = r
	}
	results := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		if r, ok := byId[id]; ok {
			results = append(results, &dataloader.Result[*T]{Data: r})
			continue
		}
		results = append(results, &dataloader.Result[*T]{Error: fmt.Errorf("id %d: %w", id, utils.ErrorRecordNotFound)})
	}
	return results
}

func GetCombinations(ctx context.Context, ids []int) ([]*models.SegmentCombination, []error) {
	return For(ctx).CombinationLoader.LoadMany(ctx, ids)()
}

func GetSegments(ctx context.Context, ids []int) ([]*models.Segment, []error) {
	return For(ctx).SegmentLoader.LoadMany(ctx, ids)()
}

func GetUsers(ctx context.Context, ids []int) ([]*models.User, []error) {
	return For(ctx).UserLoader.LoadMany(ctx, ids)()
}
