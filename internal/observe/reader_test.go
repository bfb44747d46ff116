package observe

import (
	"bytes"
	"io"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInstrumentReader_RecordsEveryBlock(t *testing.T) {
	m, reader := newTestMetrics(t)

	src := bytes.NewReader(make([]byte, 4096))
	r := InstrumentReader(src, m)

	buf := make([]byte, 1024)
	reads := 0
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		reads++
	}
	if reads != 4 {
		t.Fatalf("reads = %d, want 4", reads)
	}

	rm := collect(t, reader)
	met := findMetric(rm, "stumpcast.mixer.block_fill")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	// The EOF read is measured too.
	if got := hist.DataPoints[0].Count; got != 5 {
		t.Errorf("sample count = %d, want 5", got)
	}
}

func TestInstrumentReader_PassesThroughData(t *testing.T) {
	m, _ := newTestMetrics(t)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r := InstrumentReader(bytes.NewReader(want), m)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read %v, want %v", got, want)
	}
}
