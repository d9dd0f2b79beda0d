package orchestrator

import (
	"maps"
	"math"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/protocol"
)

// DownloadProgress tracks the download percentage of every model file seen
// during one load. It is not safe for concurrent use.
type DownloadProgress struct {
	files map[string]float64
}

// Set records pct for file, clamped to 0..100.
func (d *DownloadProgress) Set(file string, pct float64) {
	if d.files == nil {
		d.files = make(map[string]float64)
	}
	d.files[file] = math.Max(0, math.Min(100, pct))
}

// Apply records a download envelope. done always counts as 100.
func (d *DownloadProgress) Apply(env protocol.Download) {
	pct := env.Progress
	switch env.Phase {
	case backend.ProgressInitiate:
		pct = 0
	case backend.ProgressDone:
		pct = 100
	}
	d.Set(env.File, pct)
}

// Aggregate returns round(sum / (100 * files) * 100), or 0 when no file
// has been seen.
func (d *DownloadProgress) Aggregate() int {
	if len(d.files) == 0 {
		return 0
	}
	var sum float64
	for _, p := range d.files {
		sum += p
	}
	return int(math.Round(sum / float64(100*len(d.files)) * 100))
}

// Files returns a copy of the per-file percentages.
func (d *DownloadProgress) Files() map[string]float64 {
	return maps.Clone(d.files)
}

// Reset forgets every file.
func (d *DownloadProgress) Reset() { d.files = nil }
