package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// maxPreallocSamples bounds the per-channel capacity reserved up front.
const maxPreallocSamples = 1 << 18

// DecodeFLAC decodes a FLAC stream, downmixes it to mono and resamples it
// to SampleRate.
func DecodeFLAC(r io.Reader) ([]float32, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("open flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	if info.NChannels == 0 || info.BitsPerSample == 0 || info.SampleRate == 0 {
		return nil, fmt.Errorf("invalid flac stream info")
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))
	// NSamples comes from the upload and is only a hint; slices grow
	// with the frames actually decoded.
	prealloc := int(min(info.NSamples, maxPreallocSamples))
	channels := make([][]float32, info.NChannels)
	for i := range channels {
		channels[i] = make([]float32, 0, prealloc)
	}

	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse flac frame: %w", err)
		}
		for ch, sub := range f.Subframes {
			if ch >= len(channels) {
				break
			}
			for _, s := range sub.Samples {
				channels[ch] = append(channels[ch], float32(s)/scale)
			}
		}
	}
	return Resample(Downmix(channels), int(info.SampleRate), SampleRate), nil
}
