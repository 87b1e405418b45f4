package heatmaps_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightify/internal/coreerrors"
	"insightify/internal/heatmaps"
	"insightify/internal/testsupport"
)

func TestAppendHeatmapPointsMergesOnConflict(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "merge.example.com")

	batch := []heatmaps.PointInput{
		{PageURL: "/pricing", HeatmapType: heatmaps.TypeClick, X: 100, Y: 200, Count: 3},
		{PageURL: "/pricing", HeatmapType: heatmaps.TypeClick, X: 100, Y: 200, Count: 2},
		{PageURL: "/pricing", HeatmapType: heatmaps.TypeClick, X: 50, Y: 60},
	}
	merged, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, merged)

	// Same coordinate again, through a second batch.
	_, err = heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{
		{PageURL: "/pricing", HeatmapType: heatmaps.TypeClick, X: 100, Y: 200, Count: 4},
	})
	require.NoError(t, err)

	var rows []heatmaps.HeatmapPoint
	require.NoError(t, dbManager.GetConnection().
		Where("project_id = ? AND page_url = ?", project.ID, "/pricing").
		Order("count DESC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 9, rows[0].Count) // 3 + 2 + 4
	assert.Equal(t, 1, rows[1].Count) // count defaults to 1

	var page heatmaps.HeatmapPage
	require.NoError(t, dbManager.GetConnection().
		Where("project_id = ? AND page_url = ?", project.ID, "/pricing").
		First(&page).Error)
	assert.Equal(t, 10, page.TotalClicks)
	assert.Equal(t, 0, page.TotalScrolls)
}

func TestAppendHeatmapPointsRejectsWholeBatch(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "reject.example.com")

	batch := []heatmaps.PointInput{
		{PageURL: "/home", HeatmapType: heatmaps.TypeClick, X: 1, Y: 1},
		{PageURL: "/home", HeatmapType: "hover", X: 2, Y: 2},
	}
	merged, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, batch)
	assert.Equal(t, 0, merged)

	var validationErr *coreerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "heatmap_type", validationErr.Field)

	// Nothing from the batch was written, including the valid point.
	var count int64
	dbManager.GetConnection().Model(&heatmaps.HeatmapPoint{}).
		Where("project_id = ?", project.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestAppendHeatmapPointsValidation(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "validate.example.com")

	tests := []struct {
		name  string
		point heatmaps.PointInput
	}{
		{"empty page url", heatmaps.PointInput{HeatmapType: heatmaps.TypeClick, X: 1, Y: 1}},
		{"negative x", heatmaps.PointInput{PageURL: "/a", HeatmapType: heatmaps.TypeMove, X: -1, Y: 1}},
		{"negative y", heatmaps.PointInput{PageURL: "/a", HeatmapType: heatmaps.TypeScroll, X: 1, Y: -1}},
		{"unknown type", heatmaps.PointInput{PageURL: "/a", HeatmapType: "tap", X: 1, Y: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{tc.point})
			var validationErr *coreerrors.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}

	t.Run("empty batch is a no-op", func(t *testing.T) {
		merged, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, merged)
	})
}

func TestConcurrentDisjointBatches(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "concurrent.example.com")

	const writers = 4
	const perWriter = 10

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]heatmaps.PointInput, 0, perWriter)
			for i := 0; i < perWriter; i++ {
				batch = append(batch, heatmaps.PointInput{
					PageURL:     "/landing",
					HeatmapType: heatmaps.TypeClick,
					X:           w*1000 + i,
					Y:           10,
				})
			}
			_, errs[w] = heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, batch)
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var count int64
	dbManager.GetConnection().Model(&heatmaps.HeatmapPoint{}).
		Where("project_id = ?", project.ID).Count(&count)
	assert.Equal(t, int64(writers*perWriter), count)

	var page heatmaps.HeatmapPage
	require.NoError(t, dbManager.GetConnection().
		Where("project_id = ? AND page_url = ?", project.ID, "/landing").
		First(&page).Error)
	assert.Equal(t, writers*perWriter, page.TotalClicks)
}

func TestGetAggregatedByPage(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "aggregate.example.com")

	_, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{
		{PageURL: "/docs", HeatmapType: heatmaps.TypeClick, X: 10, Y: 10, Count: 5},
		{PageURL: "/docs", HeatmapType: heatmaps.TypeClick, X: 20, Y: 20, Count: 2},
		{PageURL: "/docs", HeatmapType: heatmaps.TypeScroll, X: 0, Y: 500, Count: 9},
		{PageURL: "/other", HeatmapType: heatmaps.TypeClick, X: 10, Y: 10, Count: 7},
	})
	require.NoError(t, err)

	points, err := heatmaps.GetAggregatedByPage(context.Background(), dbManager, project.ID, "/docs", heatmaps.TypeClick)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(5), points[0].Count)
	assert.Equal(t, 10, points[0].X)
	assert.Equal(t, int64(2), points[1].Count)

	// Scroll data stays out of click queries.
	scrolls, err := heatmaps.GetAggregatedByPage(context.Background(), dbManager, project.ID, "/docs", heatmaps.TypeScroll)
	require.NoError(t, err)
	require.Len(t, scrolls, 1)
	assert.Equal(t, int64(9), scrolls[0].Count)

	_, err = heatmaps.GetAggregatedByPage(context.Background(), dbManager, project.ID, "", heatmaps.TypeClick)
	var validationErr *coreerrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestGetElementAnalysis(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "elements.example.com")

	_, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{
		{PageURL: "/signup", HeatmapType: heatmaps.TypeClick, X: 1, Y: 1, Count: 8, ElementSelector: "#submit", ElementText: "Sign up"},
		{PageURL: "/signup", HeatmapType: heatmaps.TypeClick, X: 2, Y: 2, Count: 4, ElementSelector: "#submit", ElementText: "Sign up"},
		{PageURL: "/signup", HeatmapType: heatmaps.TypeClick, X: 3, Y: 3, Count: 5, ElementSelector: ".nav-logo", ElementText: ""},
		{PageURL: "/signup", HeatmapType: heatmaps.TypeClick, X: 4, Y: 4, Count: 2}, // no selector
		{PageURL: "/signup", HeatmapType: heatmaps.TypeScroll, X: 0, Y: 600, Count: 7, ElementSelector: "#pricing-table", ElementText: "Pricing"},
	})
	require.NoError(t, err)

	stats, err := heatmaps.GetElementAnalysis(context.Background(), dbManager, project.ID, "/signup", heatmaps.TypeClick)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "#submit", stats[0].ElementSelector)
	assert.Equal(t, int64(12), stats[0].Count)
	assert.Equal(t, ".nav-logo", stats[1].ElementSelector)
	assert.Equal(t, int64(5), stats[1].Count)

	// Each heatmap type gets its own breakdown; scroll activity never leaks
	// into the click analysis above.
	scrolls, err := heatmaps.GetElementAnalysis(context.Background(), dbManager, project.ID, "/signup", heatmaps.TypeScroll)
	require.NoError(t, err)
	require.Len(t, scrolls, 1)
	assert.Equal(t, "#pricing-table", scrolls[0].ElementSelector)
	assert.Equal(t, int64(7), scrolls[0].Count)

	_, err = heatmaps.GetElementAnalysis(context.Background(), dbManager, project.ID, "/signup", "hover")
	var validationErr *coreerrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestGetProjectStats(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "projectstats.example.com")

	stats, err := heatmaps.GetProjectStats(context.Background(), dbManager, project.ID)
	require.NoError(t, err)
	assert.Nil(t, stats)

	_, err = heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{
		{PageURL: "/a", HeatmapType: heatmaps.TypeClick, X: 1, Y: 1, Count: 3},
		{PageURL: "/a", HeatmapType: heatmaps.TypeScroll, X: 0, Y: 300, Count: 2},
		{PageURL: "/b", HeatmapType: heatmaps.TypeMove, X: 7, Y: 7, Count: 10},
	})
	require.NoError(t, err)

	stats, err = heatmaps.GetProjectStats(context.Background(), dbManager, project.ID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.TotalClicks)
	assert.Equal(t, int64(2), stats.TotalScrolls)
	assert.Equal(t, int64(10), stats.TotalMoves)
	assert.Equal(t, "/b", stats.TopPageURL)
	assert.Equal(t, int64(10), stats.TopPageTotal)
}

func TestDeleteHeatmapPage(t *testing.T) {
	dbManager, logger, project := testsupport.SetupTestDBManagerWithProject(t, "delete.example.com")

	_, err := heatmaps.AppendHeatmapPoints(dbManager, logger, project.ID, []heatmaps.PointInput{
		{PageURL: "/gone", HeatmapType: heatmaps.TypeClick, X: 1, Y: 1},
		{PageURL: "/kept", HeatmapType: heatmaps.TypeClick, X: 1, Y: 1},
	})
	require.NoError(t, err)

	require.NoError(t, heatmaps.DeleteHeatmapPage(dbManager, logger, project.ID, "/gone"))

	var count int64
	dbManager.GetConnection().Model(&heatmaps.HeatmapPoint{}).
		Where("project_id = ? AND page_url = ?", project.ID, "/gone").Count(&count)
	assert.Equal(t, int64(0), count)

	dbManager.GetConnection().Model(&heatmaps.HeatmapPage{}).
		Where("project_id = ? AND page_url = ?", project.ID, "/kept").Count(&count)
	assert.Equal(t, int64(1), count)

	// Deleting an unknown page is a no-op.
	require.NoError(t, heatmaps.DeleteHeatmapPage(dbManager, logger, project.ID, "/never-existed"))
}
