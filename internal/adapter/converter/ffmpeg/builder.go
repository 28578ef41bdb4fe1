package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/bnema/transcoder/internal/domain"
	"github.com/bnema/transcoder/internal/port"
)

const (
	videoContainer = "mp4"
	stillFormat    = "image2"
	sharpenFilter  = ",unsharp=5:5:1.0:5:5:0.0"
)

// Builder assembles encoder and prober argument vectors.
type Builder struct {
	encoderPath   string
	proberPath    string
	proberOptions []string
}

func NewBuilder(encoderPath, proberPath, proberOptions string) *Builder {
	return &Builder{
		encoderPath:   encoderPath,
		proberPath:    proberPath,
		proberOptions: strings.Fields(proberOptions),
	}
}

// Video builds an H.264 transcode of sourcePath into outputPath.
func (b *Builder) Video(sourcePath, outputPath string, opts domain.Options) domain.Command {
	args := []string{
		"-i", sourcePath,
		"-vcodec", "libx264",
		"-vprofile", "high",
		"-preset", "slow",
		"-crf", "22",
		"-c:a", "copy",
		"-bufsize", "1000k",
		"-threads", "0",
	}

	if opts.IsSet(domain.OptFrameRate) {
		args = append(args, "-r", opts.String(domain.OptFrameRate))
	}

	if opts.IsSet(domain.OptBitRate) {
		bitRate := opts.String(domain.OptBitRate)
		args = append(args, "-b:v", bitRate, "-maxrate", bitRate)
	}

	args = appendScaling(args, opts)
	args = append(args, "-f", videoContainer, "-y", outputPath)

	return domain.Command{Path: b.encoderPath, Args: args}
}

// Thumbnail builds a single-frame still extraction of sourcePath.
func (b *Builder) Thumbnail(sourcePath, outputPath string, opts domain.Options) domain.Command {
	args := []string{
		"-i", sourcePath,
		"-vcodec", "mjpeg",
		"-vframes", "1",
	}

	args = appendScaling(args, opts)

	if secs, ok := opts.Seconds(domain.OptTimeInSecs); ok && secs > 0 {
		args = append(args, "-ss", Timecode(secs))
	}

	args = append(args, "-f", stillFormat, "-y", outputPath)

	return domain.Command{Path: b.encoderPath, Args: args}
}

// Probe builds the prober invocation for sourcePath.
func (b *Builder) Probe(sourcePath string) domain.Command {
	args := make([]string, 0, len(b.proberOptions)+1)
	args = append(args, b.proberOptions...)
	args = append(args, sourcePath)
	return domain.Command{Path: b.proberPath, Args: args}
}

// Timecode formats whole seconds as HH:MM:SS.00.
func Timecode(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d.00", secs/3600, secs/60%60, secs%60)
}

// appendScaling adds the -vf filter graph when both dimensions are set:
// scale, then the aspect mode suffix, then sharpening.
func appendScaling(args []string, opts domain.Options) []string {
	if !opts.Scaled() {
		return args
	}

	return append(args, "-vf", ScaleFilter(opts))
}

// ScaleFilter renders the scale filter graph for opts.
func ScaleFilter(opts domain.Options) string {
	width := opts.String(domain.OptWidth)
	height := opts.String(domain.OptHeight)

	var sb strings.Builder
	sb.WriteString("scale=" + width + ":" + height)

	switch opts.Aspect() {
	case domain.AspectLetterbox:
		sb.WriteString(":force_original_aspect_ratio=decrease")
		sb.WriteString(",pad=" + width + ":" + height + ":(ow-iw)/2:(oh-ih)/2")
		if opts.IsSet(domain.OptLetterboxColor) {
			sb.WriteString(":color=" + opts.String(domain.OptLetterboxColor))
		}
	case domain.AspectCrop:
		sb.WriteString(":force_original_aspect_ratio=increase")
		sb.WriteString(",crop=" + width + ":" + height)
	default:
		sb.WriteString(":force_original_aspect_ratio=disable")
	}

	if opts.IsSet(domain.OptSharpen) {
		sb.WriteString(sharpenFilter)
	}

	return sb.String()
}

var _ port.CommandBuilder = (*Builder)(nil)
