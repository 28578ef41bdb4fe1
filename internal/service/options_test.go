package service

import (
	"testing"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionResolver_Resolve(t *testing.T) {
	video := domain.Options{"fileSuffix": ".mp4", "bitRate": "800k", "frameRate": 15}
	thumb := domain.Options{"fileSuffix": ".jpg", "timeInSecs": 1}
	r := NewOptionResolver(video, thumb)

	got, err := r.Resolve(domain.KindVideo, domain.Options{"frameRate": 30, "width": 640})
	require.NoError(t, err)
	assert.Equal(t, domain.Options{"fileSuffix": ".mp4", "bitRate": "800k", "frameRate": 30, "width": 640}, got)
	assert.Equal(t, 15, video["frameRate"], "defaults are not mutated")

	got, err = r.Resolve(domain.KindThumbnail, nil)
	require.NoError(t, err)
	assert.Equal(t, thumb, got)
}

func TestOptionResolver_CallerCanBlankADefault(t *testing.T) {
	r := NewOptionResolver(domain.Options{"fileSuffix": ".mp4", "bitRate": "800k"}, nil)

	got, err := r.Resolve(domain.KindVideo, domain.Options{"bitRate": ""})
	require.NoError(t, err)
	assert.False(t, got.IsSet(domain.OptBitRate))
}

func TestOptionResolver_MissingDefaults(t *testing.T) {
	r := NewOptionResolver(domain.Options{"fileSuffix": ".mp4"}, nil)

	_, err := r.Resolve(domain.KindThumbnail, domain.Options{"width": 10})
	assert.ErrorIs(t, err, domain.ErrMissingDefaults)

	r = NewOptionResolver(domain.Options{}, domain.Options{"fileSuffix": ".jpg"})
	_, err = r.Resolve(domain.KindVideo, nil)
	assert.ErrorIs(t, err, domain.ErrMissingDefaults)

	_, err = r.Resolve(domain.Kind("audio"), nil)
	assert.ErrorIs(t, err, domain.ErrMissingDefaults)
}
