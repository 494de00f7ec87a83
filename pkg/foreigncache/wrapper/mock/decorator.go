package mock

import (
	"github.com/ngocbd/omniscidb/pkg/foreigncache/wrapper"
	"github.com/ngocbd/omniscidb/pkg/joincore/layout"
)

// Decorator wraps a real wrapper so a test can observe or override calls
// without the cache ever knowing the difference; it holds a weak reference
// only, since the real wrapper's lifetime is owned by the manager's wrapper
// map, not by the decorator (spec.md §9).
type Decorator struct {
	real wrapper.ForeignDataWrapper

	OnPopulateChunkBuffers  func(dst map[layout.Key][]byte) error
	OnPopulateChunkMetadata func(out *[]wrapper.MetadataEntry) error

	PopulateChunkBuffersCallCount  int
	PopulateChunkMetadataCallCount int
}

var _ wrapper.ForeignDataWrapper = (*Decorator)(nil)

// NewDecorator returns a Decorator observing real. real must outlive the
// decorator; the decorator never closes or replaces it.
func NewDecorator(real wrapper.ForeignDataWrapper) *Decorator {
	return &Decorator{real: real}
}

// Unwrap returns the real wrapper the decorator observes.
func (d *Decorator) Unwrap() wrapper.ForeignDataWrapper { return d.real }

func (d *Decorator) Kind() wrapper.Kind { return d.real.Kind() }

func (d *Decorator) PopulateChunkBuffers(dst map[layout.Key][]byte) error {
	d.PopulateChunkBuffersCallCount++
	if d.OnPopulateChunkBuffers != nil {
		return d.OnPopulateChunkBuffers(dst)
	}
	return d.real.PopulateChunkBuffers(dst)
}

func (d *Decorator) PopulateChunkMetadata(out *[]wrapper.MetadataEntry) error {
	d.PopulateChunkMetadataCallCount++
	if d.OnPopulateChunkMetadata != nil {
		return d.OnPopulateChunkMetadata(out)
	}
	return d.real.PopulateChunkMetadata(out)
}

func (d *Decorator) MaxFragmentID() (int, error) { return d.real.MaxFragmentID() }

func (d *Decorator) SerializeState() ([]byte, error) { return d.real.SerializeState() }

func (d *Decorator) RestoreState(data []byte) error { return d.real.RestoreState(data) }
