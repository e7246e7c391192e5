package handlers

import (
	"context"
	"testing"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/erp_backend/middlewares"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func segmentLoaders(fetched *[]int) context.Context {
	l := middlewares.NewLoaders()
	l.SegmentLoader = dataloader.NewBatchedLoader(func(_ context.Context, ids []int) []*dataloader.Result[*models.Segment] {
		*fetched = append(*fetched, ids...)
		out := make([]*dataloader.Result[*models.Segment], len(ids))
		for i, id := range ids {
			out[i] = &dataloader.Result[*models.Segment]{Data: &models.Segment{ID: id, Code: "C"}}
		}
		return out
	})
	return middlewares.WithLoaders(context.Background(), l)
}

func TestWithSegmentsLoadsMissingSegments(t *testing.T) {
	var fetched []int
	ctx := segmentLoaders(&fetched)
	preloaded := &models.Segment{ID: 1, Code: "1000"}
	comb := &models.SegmentCombination{ID: 7, Details: []models.SegmentCombinationDetail{
		{SegmentTypeId: 1, SegmentId: 1, Segment: preloaded},
		{SegmentTypeId: 2, SegmentId: 20},
		{SegmentTypeId: 3, SegmentId: 30},
	}}

	got := withSegments(ctx, comb)
	require.Same(t, comb, got)
	assert.Same(t, preloaded, got.Details[0].Segment)
	require.NotNil(t, got.Details[1].Segment)
	assert.Equal(t, 20, got.Details[1].Segment.ID)
	assert.Equal(t, 30, got.Details[2].Segment.ID)
	assert.ElementsMatch(t, []int{20, 30}, fetched)
}

func TestWithSegmentsSkipsLoaderWhenPreloaded(t *testing.T) {
	var fetched []int
	ctx := segmentLoaders(&fetched)
	comb := &models.SegmentCombination{Details: []models.SegmentCombinationDetail{
		{SegmentId: 1, Segment: &models.Segment{ID: 1}},
	}}
	withSegments(ctx, comb)
	assert.Empty(t, fetched)
	assert.Nil(t, withSegments(ctx, nil))
}
