package model

import (
	"encoding/json"
	"fmt"
)

// Partition assigns 1-based product indices to named buckets. Bucket
// iteration order is the order buckets were first assigned to, which the
// classification engine seeds from taxonomy order. A verified partition
// contains every index 1..N exactly once.
type Partition struct {
	buckets map[string][]int
	order   []string
}

// NewPartition creates an empty partition. Bucket names passed here are
// pre-registered so that iteration order matches taxonomy order even for
// buckets that receive their first index late.
func NewPartition(names ...string) *Partition {
	p := &Partition{buckets: make(map[string][]int, len(names))}
	for _, name := range names {
		if _, ok := p.buckets[name]; ok {
			continue
		}
		p.buckets[name] = nil
		p.order = append(p.order, name)
	}
	return p
}

// Assign appends index to the named bucket, creating the bucket if needed.
func (p *Partition) Assign(name string, index int) {
	if _, ok := p.buckets[name]; !ok {
		p.order = append(p.order, name)
	}
	p.buckets[name] = append(p.buckets[name], index)
}

// Names returns the non-empty bucket names in iteration order.
func (p *Partition) Names() []string {
	out := make([]string, 0, len(p.order))
	for _, name := range p.order {
		if len(p.buckets[name]) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// Indices returns the indices assigned to name, in assignment order.
func (p *Partition) Indices(name string) []int {
	src := p.buckets[name]
	out := make([]int, len(src))
	copy(out, src)
	return out
}

// Total returns the number of assigned indices across all buckets, counting
// duplicates if any exist.
func (p *Partition) Total() int {
	n := 0
	for _, indices := range p.buckets {
		n += len(indices)
	}
	return n
}

// Largest returns the name of the bucket with the most indices. Ties are
// broken by iteration order. The second return is false for an empty
// partition with no registered buckets.
func (p *Partition) Largest() (string, bool) {
	if len(p.order) == 0 {
		return "", false
	}
	best := p.order[0]
	for _, name := range p.order[1:] {
		if len(p.buckets[name]) > len(p.buckets[best]) {
			best = name
		}
	}
	return best, true
}

// Dedupe removes indices that appear in more than one bucket, keeping the
// occurrence in the first bucket in iteration order. It returns the number
// of removals.
func (p *Partition) Dedupe() int {
	seen := make(map[int]struct{}, p.Total())
	removed := 0
	for _, name := range p.order {
		kept := p.buckets[name][:0]
		for _, idx := range p.buckets[name] {
			if _, dup := seen[idx]; dup {
				removed++
				continue
			}
			seen[idx] = struct{}{}
			kept = append(kept, idx)
		}
		p.buckets[name] = kept
	}
	return removed
}

// Verify checks the partition covers exactly the indices 1..n with no
// duplicates and no out-of-range entries.
func (p *Partition) Verify(n int) error {
	seen := make(map[int]string, n)
	for _, name := range p.order {
		for _, idx := range p.buckets[name] {
			if idx < 1 || idx > n {
				return fmt.Errorf("bucket %q contains out-of-range index %d (n=%d)", name, idx, n)
			}
			if prev, dup := seen[idx]; dup {
				return fmt.Errorf("index %d assigned to both %q and %q", idx, prev, name)
			}
			seen[idx] = name
		}
	}
	if len(seen) != n {
		return fmt.Errorf("partition covers %d of %d indices", len(seen), n)
	}
	return nil
}

// DropEmpty removes buckets with no indices from iteration order.
func (p *Partition) DropEmpty() {
	kept := p.order[:0]
	for _, name := range p.order {
		if len(p.buckets[name]) == 0 {
			delete(p.buckets, name)
			continue
		}
		kept = append(kept, name)
	}
	p.order = kept
}

// partitionBucket is the JSON wire form of one bucket; an array of these
// preserves iteration order across a round trip.
type partitionBucket struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices"`
}

// MarshalJSON encodes the partition as an ordered array of buckets.
func (p *Partition) MarshalJSON() ([]byte, error) {
	out := make([]partitionBucket, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, partitionBucket{Name: name, Indices: p.buckets[name]})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the ordered-bucket form produced by MarshalJSON.
func (p *Partition) UnmarshalJSON(data []byte) error {
	var in []partitionBucket
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.buckets = make(map[string][]int, len(in))
	p.order = p.order[:0]
	for _, b := range in {
		if _, ok := p.buckets[b.Name]; !ok {
			p.order = append(p.order, b.Name)
		}
		p.buckets[b.Name] = append(p.buckets[b.Name], b.Indices...)
	}
	return nil
}
