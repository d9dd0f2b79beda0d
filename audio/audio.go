// Package audio turns uploaded audio into the mono 16 kHz float32 samples
// the transcription pipeline consumes.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"time"
)

// SampleRate is the rate every decoded buffer is converted to.
const SampleRate = 16000

// Accepted content types.
const (
	ContentTypeFLAC  = "audio/flac"
	ContentTypeXFLAC = "audio/x-flac"
	// ContentTypeRaw is little-endian float32 mono PCM already at SampleRate.
	ContentTypeRaw = "application/octet-stream"
)

var (
	// ErrUnsupported is returned for content types Decode cannot handle.
	ErrUnsupported = errors.New("unsupported audio content type")
	// ErrEmpty is returned when the input holds no samples.
	ErrEmpty = errors.New("audio contains no samples")
)

// Decode reads r according to contentType and returns mono samples at
// SampleRate.
func Decode(contentType string, r io.Reader) ([]float32, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, contentType)
	}

	var samples []float32
	switch mediaType {
	case ContentTypeFLAC, ContentTypeXFLAC:
		samples, err = DecodeFLAC(r)
	case ContentTypeRaw:
		var b []byte
		if b, err = io.ReadAll(r); err == nil {
			samples, err = DecodeF32LE(b)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, mediaType)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	return samples, nil
}

// EncodeF32LE serializes samples as little-endian float32.
func EncodeF32LE(samples []float32) []byte {
	b := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(s))
	}
	return b
}

// DecodeF32LE parses little-endian float32 samples.
func DecodeF32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("raw audio length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

// Downmix averages channels into one. Channels must have equal length.
func Downmix(channels [][]float32) []float32 {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}
	out := make([]float32, len(channels[0]))
	scale := 1 / float32(len(channels))
	for _, ch := range channels {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// Resample converts samples from one rate to another by linear
// interpolation. Non-positive rates yield nil.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 {
		return nil
	}
	if from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// Duration returns the play time of samples at SampleRate.
func Duration(samples []float32) time.Duration {
	return time.Duration(len(samples)) * time.Second / SampleRate
}
