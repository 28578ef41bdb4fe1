package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	FormatLong string            `json:"format_long_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	NbStreams  int               `json:"nb_streams"`
	Tags       map[string]string `json:"tags"`
}

type ProbeStream struct {
	Index         int               `json:"index"`
	CodecType     string            `json:"codec_type"`
	CodecName     string            `json:"codec_name"`
	CodecLong     string            `json:"codec_long_name"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	PixFmt        string            `json:"pix_fmt"`
	RFrameRate    string            `json:"r_frame_rate"`
	AvgFrameRate  string            `json:"avg_frame_rate"`
	Duration      string            `json:"duration"`
	BitRate       string            `json:"bit_rate"`
	SampleRate    string            `json:"sample_rate"`
	Channels      int               `json:"channels"`
	ChannelLayout string            `json:"channel_layout"`
	Tags          map[string]string `json:"tags"`
}

// ProbeResult is the prober's JSON document. Raw holds the document
// verbatim; Format and Streams are a typed view of the common fields.
type ProbeResult struct {
	Format  ProbeFormat    `json:"-"`
	Streams []ProbeStream  `json:"-"`
	Raw     map[string]any `json:"-"`
}

var ErrEmptyProbe = errors.New("empty probe output")

// ParseProbe decodes prober output. Anything other than a single JSON
// object is an error.
func ParseProbe(data []byte) (*ProbeResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyProbe
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}
	if raw == nil {
		return nil, ErrEmptyProbe
	}

	var typed struct {
		Format  ProbeFormat   `json:"format"`
		Streams []ProbeStream `json:"streams"`
	}
	// Raw is authoritative; typed decoding errors are ignored.
	_ = json.Unmarshal(data, &typed)

	return &ProbeResult{
		Format:  typed.Format,
		Streams: typed.Streams,
		Raw:     raw,
	}, nil
}

// MarshalJSON emits the verbatim document.
func (p *ProbeResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Raw)
}

func (p *ProbeResult) VideoStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

func (p *ProbeResult) AudioStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

func (p *ProbeResult) Dimensions() (width, height int) {
	vs := p.VideoStream()
	if vs != nil {
		return vs.Width, vs.Height
	}
	return 0, 0
}

// DurationSeconds returns the container duration, or 0 if unknown.
func (p *ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}

func ParseFrameRate(fraction string) float64 {
	if fraction == "" || fraction == "0/0" {
		return 0
	}
	var num, den int
	if _, err := fmt.Sscanf(fraction, "%d/%d", &num, &den); err == nil && den > 0 {
		return float64(num) / float64(den)
	}
	return 0
}
