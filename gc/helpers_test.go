// ABOUTME: Payload types and helpers shared by the collector tests
// ABOUTME: Includes hook-recording payloads and panic capture

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// item is a plain payload with one outgoing handle.
type item struct {
	Name string
	Next Ptr[item]
}

// multi holds any number of handles.
type multi struct {
	Kids []Ptr[multi]
}

// events records hook calls in order.
type events struct {
	log []string
}

func (e *events) add(s string) { e.log = append(e.log, s) }

// probe records its BeforeDestroy and Destroy calls.
type probe struct {
	name string
	ev   *events
	Next Ptr[probe]
}

func (p *probe) BeforeDestroy() { p.ev.add("before " + p.name) }
func (p *probe) Destroy()       { p.ev.add("destroy " + p.name) }

// hooked runs an arbitrary function from BeforeDestroy. It implements
// Traverser because the function field cannot be inspected.
type hooked struct {
	Next   Ptr[hooked]
	before func()
}

func (h *hooked) Traverse(v Visitor) { h.Next.Traverse(v) }

func (h *hooked) BeforeDestroy() {
	if h.before != nil {
		h.before()
	}
}

func newItem(t testing.TB, c *Collector, name string, next Ptr[item]) Ptr[item] {
	t.Helper()
	p, err := New(c, item{Name: name, Next: next})
	require.NoError(t, err)
	return p
}

func newProbe(t testing.TB, c *Collector, ev *events, name string, next Ptr[probe]) Ptr[probe] {
	t.Helper()
	p, err := New(c, probe{name: name, ev: ev, Next: next})
	require.NoError(t, err)
	return p
}

// recovered runs f and returns the error it panicked with, or nil.
func recovered(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	f()
	return nil
}

func requireValid(t testing.TB, c *Collector) {
	t.Helper()
	require.NoError(t, c.Validate())
}
