package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kbukum/scribe/pipeline"
)

// maxLineSize bounds one NDJSON record. Chunk records carry a full token list.
const maxLineSize = 4 << 20

// NDJSON returns a pipeline over the newline-delimited JSON records of r.
// Blank lines are skipped. The body is closed when the pipeline finishes.
func NDJSON[T any](body io.ReadCloser) *pipeline.Pipeline[T] {
	return pipeline.FromFunc(func(context.Context) pipeline.Iterator[T] {
		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		return &ndjsonIter[T]{body: body, sc: sc}
	})
}

type ndjsonIter[T any] struct {
	body io.ReadCloser
	sc   *bufio.Scanner
	line int
}

func (it *ndjsonIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		if !it.sc.Scan() {
			if err := it.sc.Err(); err != nil {
				return zero, false, fmt.Errorf("read stream: %w", err)
			}
			return zero, false, nil
		}
		it.line++
		raw := it.sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return zero, false, fmt.Errorf("decode line %d: %w", it.line, err)
		}
		return rec, true, nil
	}
}

func (it *ndjsonIter[T]) Close() error { return it.body.Close() }
