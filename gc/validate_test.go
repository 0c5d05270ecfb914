// ABOUTME: Tests for the collector consistency check
// ABOUTME: Corrupts internal state directly and expects assertion failures

package gc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHealthy(t *testing.T) {
	c := NewCollector()
	assert.NoError(t, c.Validate())

	a := NewAnchor(c, newItem(t, c, "a", newItem(t, c, "b", Ptr[item]{})))
	assert.NoError(t, c.Validate())
	a.Release()
	assert.NoError(t, c.Validate())
}

func TestValidateCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(c *Collector, p Ptr[item])
		want    string
	}{
		{"zero ref count", func(c *Collector, p Ptr[item]) { p.b.refCount = 0 }, "ref count 0"},
		{"object count", func(c *Collector, p Ptr[item]) { c.objects++ }, "object count"},
		{"memory", func(c *Collector, p Ptr[item]) { c.nodeBytes++ }, "memory accounting"},
		{"stale mark", func(c *Collector, p Ptr[item]) { p.b.marks = 3 }, "mark state"},
		{"wrong list", func(c *Collector, p Ptr[item]) { p.b.where = inTemp }, "records temp"},
		{"anchor count", func(c *Collector, p Ptr[item]) { c.anchorCount++ }, "anchor count"},
		{"broken links", func(c *Collector, p Ptr[item]) { p.b.prev = p.b.next }, "list broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector()
			p := newItem(t, c, "p", newItem(t, c, "q", Ptr[item]{}))
			tt.corrupt(c, p)

			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasAssertionFailure(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateBoundsViolations(t *testing.T) {
	c := NewCollector()
	var ps []Ptr[item]
	for i := 0; i < 2*maxViolations; i++ {
		p := newItem(t, c, "p", Ptr[item]{})
		p.b.marks = 1
		ps = append(ps, p)
	}
	err := c.Validate()
	require.Error(t, err)
	for _, p := range ps {
		p.b.marks = 0
		p.Release()
	}
	requireValid(t, c)
}

func TestValidationOnCollect(t *testing.T) {
	c := NewCollector(WithValidation(true))
	a := NewAnchor(c, newItem(t, c, "a", Ptr[item]{}))
	defer a.Release()

	// An anchored object whose count misses a rooted edge.
	a.Value().Next = a.Get()
	_, err := c.Collect()
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
	assert.Contains(t, err.Error(), "below 2 rooted edges")

	a.Value().Next = Ptr[item]{}
}

func TestDiagnosticsNeedIdle(t *testing.T) {
	c := NewCollector()
	var validateErr, snapErr error
	p, err := New(c, hooked{before: func() {
		validateErr = c.Validate()
		_, snapErr = c.Snapshot()
	}})
	require.NoError(t, err)
	p.Release()

	assert.True(t, errors.Is(validateErr, ErrNotIdle), "got %v", validateErr)
	assert.True(t, errors.Is(snapErr, ErrNotIdle), "got %v", snapErr)
}
