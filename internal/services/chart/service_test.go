package chart

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/models"
)

func sampleHistory() *models.HistoryResult {
	return &models.HistoryResult{
		Symbol: "ABCD",
		Period: models.Period5D,
		Data: map[string]models.Bar{
			"2024-02-26": {Open: 2.0, High: 2.2, Low: 1.9, Close: 2.1, Volume: 1_200_000},
			"2024-02-27": {Open: 2.1, High: 2.3, Low: 2.0, Close: 2.0, Volume: 900_000},
			"2024-02-28": {Open: 2.0, High: 3.4, Low: 2.0, Close: 3.3, Volume: 15_000_000},
		},
	}
}

func TestRenderWritesPDF(t *testing.T) {
	s := NewService(t.TempDir(), arbor.NewLogger())

	for _, kind := range []string{KindLine, KindCandlestick, ""} {
		path, err := s.Render(context.Background(), sampleHistory(), kind, "ABCD 5d")
		require.NoError(t, err, kind)
		assert.Regexp(t, `chart-\d+\.pdf$`, path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, len(data) > 100)
		assert.Equal(t, "%PDF", string(data[:4]))
	}
}

func TestRenderSingleBar(t *testing.T) {
	s := NewService(t.TempDir(), arbor.NewLogger())
	history := &models.HistoryResult{Symbol: "X", Period: models.Period1D, Data: map[string]models.Bar{
		"2024-03-01": {Open: 1, High: 1, Low: 1, Close: 1},
	}}
	_, err := s.Render(context.Background(), history, KindLine, "X")
	assert.NoError(t, err)
}

func TestRenderRejectsBadInput(t *testing.T) {
	s := NewService(t.TempDir(), arbor.NewLogger())

	_, err := s.Render(context.Background(), sampleHistory(), "pie", "x")
	assert.ErrorContains(t, err, `unsupported chart type "pie"`)

	_, err = s.Render(context.Background(), &models.HistoryResult{Symbol: "X"}, KindLine, "x")
	assert.EqualError(t, err, "chart data is empty")

	_, err = s.Render(context.Background(), nil, KindLine, "x")
	assert.Error(t, err)
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "15.0M", formatVolume(15_000_000))
	assert.Equal(t, "2.5B", formatVolume(2_500_000_000))
	assert.Equal(t, "1.2K", formatVolume(1_200))
	assert.Equal(t, "999", formatVolume(999))
}
