// File: tracker/tracker_test.go
// Author: momentics <momentics@gmail.com>

package tracker

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/tieralloc/api"
)

func ptrOf(b *byte) unsafe.Pointer { return unsafe.Pointer(b) }

func TestTrackerRecordsWhileEnabled(t *testing.T) {
	tr := New()
	buf := make([]byte, 64)
	p := ptrOf(&buf[0])

	// Disabled: nothing recorded.
	tr.TrackAllocation(p, 64, api.Unknown, nil)
	assert.Equal(t, 0, tr.Len())

	tr.Enable(true)
	tr.TrackAllocation(p, 64, api.Site{File: "alloc.go", Line: 12}, nil)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, uintptr(64), tr.CurrentBytes())
	assert.Equal(t, p, tr.FindRaw(p))

	tr.TrackDeallocation(p)
	assert.Equal(t, 0, tr.Len())
	assert.Zero(t, tr.CurrentBytes())
}

func TestTrackerDisableStillHonoursDeallocations(t *testing.T) {
	tr := New()
	tr.Enable(false)
	buf := make([]byte, 32)
	p := ptrOf(&buf[0])
	tr.TrackAllocation(p, 32, api.Unknown, nil)
	require.Equal(t, 1, tr.Len())

	tr.Disable()
	// New allocations are not admitted...
	other := make([]byte, 32)
	tr.TrackAllocation(ptrOf(&other[0]), 32, api.Unknown, nil)
	assert.Equal(t, 1, tr.Len())
	// ...but tracked pointers still leave the map on free.
	tr.TrackDeallocation(p)
	assert.Equal(t, 0, tr.Len())
}

func TestReportFormats(t *testing.T) {
	tr := New()
	tr.Enable(true)

	var clean strings.Builder
	tr.ReportLeaks(&clean)
	assert.Contains(t, clean.String(), "No memory leaks detected")

	buf := make([]byte, 128)
	tr.TrackAllocation(ptrOf(&buf[0]), 128, api.Site{File: "pool.go", Line: 99}, nil)

	var leaky strings.Builder
	tr.ReportLeaks(&leaky)
	out := leaky.String()
	assert.Contains(t, out, "Total leaks: 1")
	assert.Contains(t, out, "128 bytes")
	assert.Contains(t, out, "pool.go:99")
}

func TestReporterModes(t *testing.T) {
	tr := New()
	tr.Enable(false)
	buf := make([]byte, 16)
	tr.TrackAllocation(ptrOf(&buf[0]), 16, api.Unknown, nil)

	var out strings.Builder
	r := NewReporter(tr, Automatic, &out)
	r.Report()
	r.Report()
	assert.Equal(t, 1, strings.Count(out.String(), "Total leaks"), "automatic reports once")

	var manual strings.Builder
	m := NewReporter(tr, Manual, &manual)
	m.Report()
	m.Report()
	assert.Equal(t, 2, strings.Count(manual.String(), "Total leaks"))

	var silent strings.Builder
	d := NewReporter(tr, Disabled, &silent)
	d.Report()
	assert.Empty(t, silent.String())
}
