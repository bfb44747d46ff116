package observe

import (
	"context"
	"io"
	"time"
)

// timedReader measures each Read into [Metrics.BlockFill]. The device thread
// is the caller, so the measurement itself must stay allocation-light.
type timedReader struct {
	src io.Reader
	m   *Metrics
	ctx context.Context
}

// InstrumentReader wraps the mixer's output reader so every device block pull
// lands in the block-fill histogram.
func InstrumentReader(src io.Reader, m *Metrics) io.Reader {
	return &timedReader{src: src, m: m, ctx: context.Background()}
}

// Read implements io.Reader.
func (t *timedReader) Read(p []byte) (int, error) {
	start := time.Now()
	n, err := t.src.Read(p)
	t.m.BlockFill.Record(t.ctx, time.Since(start).Seconds())
	return n, err
}
