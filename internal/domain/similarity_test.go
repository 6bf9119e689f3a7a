package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarityPercent(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{name: "identical", score: -1, want: 100},
		{name: "orthogonal", score: 0, want: 50},
		{name: "opposite", score: 1, want: 0},
		{name: "above range", score: -1.5, want: 100},
		{name: "below range", score: 2, want: 0},
		{name: "nan", score: math.NaN(), want: 0},
		{name: "threshold", score: -0.2, want: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SimilarityPercent(tt.score), 1e-9)
		})
	}
}

func TestL2Normalize(t *testing.T) {
	v, ok := L2Normalize([]float32{3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.True(t, IsNormalized(v, 1e-6))

	_, ok = L2Normalize([]float32{0, 0, 0})
	assert.False(t, ok)
}

func TestNewMatchResultPreview(t *testing.T) {
	img := NewMatchResult(Neighbor{ProductID: 1, Modality: ModalityImage, StorageKey: "k", ThumbnailKey: "t", Score: -0.9})
	assert.Equal(t, "t", img.Match.PreviewRef)
	assert.Nil(t, img.Match.TsMs)
	assert.InDelta(t, 95, img.SimilarityPercent, 1e-9)

	noThumb := NewMatchResult(Neighbor{ProductID: 1, Modality: ModalityImage, StorageKey: "k"})
	assert.Equal(t, "k", noThumb.Match.PreviewRef)

	frame := NewMatchResult(Neighbor{ProductID: 2, Modality: ModalityVideoFrame, StorageKey: "f", TsMs: 1500})
	require.NotNil(t, frame.Match.TsMs)
	assert.Equal(t, int64(1500), *frame.Match.TsMs)
	assert.Equal(t, "f", frame.Match.PreviewRef)
}

func TestParseAssetKind(t *testing.T) {
	k, ok := ParseAssetKind("image/png")
	assert.True(t, ok)
	assert.Equal(t, AssetKindImage, k)

	k, ok = ParseAssetKind("VIDEO")
	assert.True(t, ok)
	assert.Equal(t, AssetKindVideo, k)

	_, ok = ParseAssetKind("application/pdf")
	assert.False(t, ok)
}
