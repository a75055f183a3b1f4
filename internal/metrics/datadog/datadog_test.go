package datadog

import (
	"slices"
	"testing"

	"combostat/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls  []call
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("NewBackend with empty Addr: want error")
	}
}

func TestBackendForwards(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}
	b.IncCounter(metrics.GroupsTotal, 2.9, metrics.Labels{"status": "merged", "job": "r1"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(fc.calls) != 2 {
		t.Fatalf("calls = %v", fc.calls)
	}
	c := fc.calls[0]
	if c.kind != "count" || c.value != 2 || !slices.Equal(c.tags, []string{"job:r1", "status:merged"}) {
		t.Fatalf("count call = %+v", c)
	}
	if fc.calls[1].kind != "histogram" || fc.calls[1].tags != nil {
		t.Fatalf("histogram call = %+v", fc.calls[1])
	}
	if !fc.closed {
		t.Fatalf("Flush did not close the client")
	}
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()
	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
}
