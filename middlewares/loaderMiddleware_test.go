package middlewares

import (
	"context"
	"errors"
	"testing"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ ID int }

func TestGenerateLoaderResults_KeepsKeyOrder(t *testing.T) {
	rows := []*row{{ID: 3}, {ID: 1}}
	results := generateLoaderResults(rows, []int{1, 2, 3}, func(r *row) int { return r.ID })

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Data.ID)
	assert.True(t, errors.Is(results[1].Error, utils.ErrorRecordNotFound))
	assert.Equal(t, 3, results[2].Data.ID)
}

func TestHandleError_RepeatsError(t *testing.T) {
	boom := errors.New("boom")
	results := handleError[*row](2, boom)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, boom, r.Error)
	}
}

func TestGetSegmentsBatchesThroughRequestLoaders(t *testing.T) {
	var calls [][]int
	fetch := func(_ context.Context, ids []int) ([]*models.Segment, error) {
		calls = append(calls, ids)
		var out []*models.Segment
		for _, id := range ids {
			if id != 404 {
				out = append(out, &models.Segment{ID: id, Code: "S"})
			}
		}
		return out, nil
	}
	l := NewLoaders()
	l.SegmentLoader = dataloader.NewBatchedLoader(batchBy(fetch, func(s *models.Segment) int { return s.ID }))
	ctx := WithLoaders(context.Background(), l)
	require.Same(t, l, For(ctx))

	segs, errs := GetSegments(ctx, []int{5, 404, 6})
	require.Len(t, segs, 3)
	assert.Equal(t, 5, segs[0].ID)
	assert.Nil(t, segs[1])
	assert.Equal(t, 6, segs[2].ID)
	require.Len(t, errs, 3)
	assert.True(t, errors.Is(errs[1], utils.ErrorRecordNotFound))
	assert.Len(t, calls, 1)

	// cached keys are not fetched again
	_, _ = GetSegments(ctx, []int{5, 6})
	assert.Len(t, calls, 1)
}
