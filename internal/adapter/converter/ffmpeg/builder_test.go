package ffmpeg

import (
	"testing"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/stretchr/testify/assert"
)

func newTestBuilder() *Builder {
	return NewBuilder("/usr/bin/ffmpeg", "/usr/bin/ffprobe", "-v quiet -print_format json -show_format -show_streams")
}

func TestBuilder_Video_Baseline(t *testing.T) {
	cmd := newTestBuilder().Video("/media/movie.mov", "/out/movie.mp4", domain.Options{"fileSuffix": ".mp4"})

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Path)
	assert.Equal(t, []string{
		"-i", "/media/movie.mov",
		"-vcodec", "libx264",
		"-vprofile", "high",
		"-preset", "slow",
		"-crf", "22",
		"-c:a", "copy",
		"-bufsize", "1000k",
		"-threads", "0",
		"-f", "mp4",
		"-y", "/out/movie.mp4",
	}, cmd.Args)
}

func TestBuilder_Video_FrameRateAndBitRate(t *testing.T) {
	cmd := newTestBuilder().Video("in.mov", "out.mp4", domain.Options{
		"frameRate": 15,
		"bitRate":   "800k",
	})

	assert.Equal(t, []string{
		"-i", "in.mov",
		"-vcodec", "libx264",
		"-vprofile", "high",
		"-preset", "slow",
		"-crf", "22",
		"-c:a", "copy",
		"-bufsize", "1000k",
		"-threads", "0",
		"-r", "15",
		"-b:v", "800k", "-maxrate", "800k",
		"-f", "mp4",
		"-y", "out.mp4",
	}, cmd.Args)
}

func TestBuilder_Video_EmptyRatesSkipped(t *testing.T) {
	cmd := newTestBuilder().Video("in.mov", "out.mp4", domain.Options{"frameRate": 0, "bitRate": ""})

	assert.NotContains(t, cmd.Args, "-r")
	assert.NotContains(t, cmd.Args, "-b:v")
	assert.NotContains(t, cmd.Args, "-maxrate")
}

func TestBuilder_Video_Scaling(t *testing.T) {
	tests := []struct {
		name string
		opts domain.Options
		want string
	}{
		{
			name: "letterbox with color",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "letterbox", "letterboxColor": "black"},
			want: "scale=640:360:force_original_aspect_ratio=decrease,pad=640:360:(ow-iw)/2:(oh-ih)/2:color=black",
		},
		{
			name: "letterbox without color",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "letterbox"},
			want: "scale=640:360:force_original_aspect_ratio=decrease,pad=640:360:(ow-iw)/2:(oh-ih)/2",
		},
		{
			name: "crop",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "crop"},
			want: "scale=640:360:force_original_aspect_ratio=increase,crop=640:360",
		},
		{
			name: "unknown mode forces dimensions",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "stretch"},
			want: "scale=640:360:force_original_aspect_ratio=disable",
		},
		{
			name: "absent mode forces dimensions",
			opts: domain.Options{"width": 640, "height": 360},
			want: "scale=640:360:force_original_aspect_ratio=disable",
		},
		{
			name: "sharpen appended last",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "crop", "sharpen": true},
			want: "scale=640:360:force_original_aspect_ratio=increase,crop=640:360,unsharp=5:5:1.0:5:5:0.0",
		},
		{
			name: "sharpen disabled",
			opts: domain.Options{"width": 640, "height": 360, "sharpen": false},
			want: "scale=640:360:force_original_aspect_ratio=disable",
		},
		{
			name: "color ignored outside letterbox",
			opts: domain.Options{"width": 640, "height": 360, "aspectRatio": "crop", "letterboxColor": "red"},
			want: "scale=640:360:force_original_aspect_ratio=increase,crop=640:360",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestBuilder().Video("in.mov", "out.mp4", tt.opts)

			vf := argAfter(cmd.Args, "-vf")
			assert.Equal(t, tt.want, vf)
			assert.Equal(t, 1, countArg(cmd.Args, "-vf"), "filters must be combined into one argument")
		})
	}
}

func TestBuilder_Video_NoScalingWithoutBothDimensions(t *testing.T) {
	for _, opts := range []domain.Options{
		{"width": 640},
		{"height": 360},
		{"width": 640, "height": ""},
		{"width": 640, "height": nil, "sharpen": true},
	} {
		cmd := newTestBuilder().Video("in.mov", "out.mp4", opts)
		assert.NotContains(t, cmd.Args, "-vf", "opts %v", opts)
	}
}

func TestBuilder_Thumbnail(t *testing.T) {
	cmd := newTestBuilder().Thumbnail("/media/movie.mov", "/out/movie_5s.jpg", domain.Options{
		"width":      200,
		"height":     nil,
		"timeInSecs": 5,
		"fileSuffix": ".jpg",
	})

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Path)
	assert.Equal(t, []string{
		"-i", "/media/movie.mov",
		"-vcodec", "mjpeg",
		"-vframes", "1",
		"-ss", "00:00:05.00",
		"-f", "image2",
		"-y", "/out/movie_5s.jpg",
	}, cmd.Args)
}

func TestBuilder_Thumbnail_ScaledWithoutSeek(t *testing.T) {
	cmd := newTestBuilder().Thumbnail("in.mov", "out.jpg", domain.Options{
		"width":       320,
		"height":      180,
		"aspectRatio": "letterbox",
		"sharpen":     true,
	})

	assert.Equal(t, []string{
		"-i", "in.mov",
		"-vcodec", "mjpeg",
		"-vframes", "1",
		"-vf", "scale=320:180:force_original_aspect_ratio=decrease,pad=320:180:(ow-iw)/2:(oh-ih)/2,unsharp=5:5:1.0:5:5:0.0",
		"-f", "image2",
		"-y", "out.jpg",
	}, cmd.Args)
}

func TestBuilder_Thumbnail_SeekFromString(t *testing.T) {
	cmd := newTestBuilder().Thumbnail("in.mov", "out.jpg", domain.Options{"timeInSecs": "90"})
	assert.Equal(t, "00:01:30.00", argAfter(cmd.Args, "-ss"))
}

func TestBuilder_Thumbnail_SeekMatchesName(t *testing.T) {
	tests := []struct {
		name  string
		value any
		seek  string
		file  string
	}{
		{"whole seconds", 5, "00:00:05.00", "movie_5s.jpg"},
		{"fraction truncated", 5.9, "00:00:05.00", "movie_5s.jpg"},
		{"fractional string truncated", "90.5", "00:01:30.00", "movie_90s.jpg"},
		{"below one second", 0.5, "", "movie.jpg"},
		{"not a number", "abc", "", "movie.jpg"},
		{"negative", -3, "", "movie.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := domain.Options{"timeInSecs": tt.value, "fileSuffix": ".jpg"}
			cmd := newTestBuilder().Thumbnail("movie.mov", "out.jpg", opts)

			assert.Equal(t, tt.file, domain.DerivativeName("movie.mov", opts))
			if tt.seek == "" {
				assert.Zero(t, countArg(cmd.Args, "-ss"))
				return
			}
			assert.Equal(t, tt.seek, argAfter(cmd.Args, "-ss"))
		})
	}
}

func TestBuilder_Probe(t *testing.T) {
	cmd := newTestBuilder().Probe("/media/my movie.mov")

	assert.Equal(t, "/usr/bin/ffprobe", cmd.Path)
	assert.Equal(t, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"/media/my movie.mov",
	}, cmd.Args)
}

func TestTimecode(t *testing.T) {
	assert.Equal(t, "00:00:00.00", Timecode(0))
	assert.Equal(t, "00:00:05.00", Timecode(5))
	assert.Equal(t, "00:01:01.00", Timecode(61))
	assert.Equal(t, "01:00:00.00", Timecode(3600))
	assert.Equal(t, "27:46:39.00", Timecode(99999))
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func countArg(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}
