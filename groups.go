package himd

import "fmt"

// Group is a friendlier view over a GroupRecord plus its decoded title.
type Group struct {
	Index      int
	StartTrack int
	EndTrack   int // exclusive
	Title      string
}

// Groups returns every live group record (index 1..N, spec.md §3.3),
// disc-title group 0 excluded.
func (t *TIF) Groups() ([]Group, error) {
	n := t.GetGroupCount()
	out := make([]Group, 0, n)
	for i := 1; i <= n; i++ {
		g := t.GetGroup(i)
		title, err := t.ReadString(int(g.TitleStringIndex))
		if err != nil {
			return nil, fmt.Errorf("himd: group %d title: %w", i, err)
		}
		out = append(out, Group{
			Index:      i,
			StartTrack: g.StartTrack(),
			EndTrack:   int(g.EndTrack),
			Title:      title,
		})
	}
	return out, nil
}

// DiscTitle decodes group 0's title chain.
func (t *TIF) DiscTitle() (string, error) {
	g := t.GetGroup(0)
	return t.ReadString(int(g.TitleStringIndex))
}

// SetDiscTitle rewrites group 0's title, freeing the previous chain.
// Passing "" frees the chain without allocating a new one.
func (t *TIF) SetDiscTitle(title string) error {
	g := t.GetGroup(0)
	old := int(g.TitleStringIndex)
	newIndex := 0
	if title != "" {
		idx, err := t.AddString(title, StringChunkRootMin)
		if err != nil {
			return err
		}
		newIndex = idx
	}
	g.TitleStringIndex = uint16(newIndex)
	t.WriteGroup(0, g)
	if old != 0 {
		t.RemoveString(old)
	}
	return nil
}

// validateGroupRanges enforces spec.md §8's group invariants: ranges lie
// within [0, trackCount], are pairwise non-overlapping, and the union of
// grouped and ungrouped tracks equals the full ordering (trivially true
// since groups only ever index into it; overlap is the load-bearing
// check).
func (t *TIF) validateGroupRanges() error {
	trackCount := t.GetTrackCount()
	n := t.GetGroupCount()
	type span struct{ start, end int }
	var spans []span
	for i := 1; i <= n; i++ {
		g := t.GetGroup(i)
		start, end := g.StartTrack(), int(g.EndTrack)
		if start < 0 || end > trackCount || start >= end {
			return fmt.Errorf("%w: group %d range [%d,%d) invalid for %d tracks", ErrGroupOverlap, i, start, end, trackCount)
		}
		spans = append(spans, span{start, end})
	}
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				return fmt.Errorf("%w: groups %d and %d overlap", ErrGroupOverlap, i+1, j+1)
			}
		}
	}
	return nil
}

// AddGroup appends a new live group covering [startTrack, endTrack) with
// the given title, after validating it does not overlap an existing one.
func (t *TIF) AddGroup(startTrack, endTrack int, title string) error {
	n := t.GetGroupCount()
	if n+1 >= maxGroups {
		return fmt.Errorf("himd: group table is full")
	}
	titleIdx, err := t.AddString(title, StringChunkRootMin)
	if err != nil {
		return err
	}
	rec := GroupRecord{
		StartTrackPlus1:  uint16(startTrack + 1),
		EndTrack:         uint16(endTrack),
		TitleStringIndex: uint16(titleIdx),
		Flag:             groupFlagLive,
	}
	t.WriteGroup(n+1, rec)
	// terminate the list
	t.WriteGroup(n+2, GroupRecord{})
	if err := t.validateGroupRanges(); err != nil {
		// roll back on overlap
		t.RemoveString(titleIdx)
		t.WriteGroup(n+1, GroupRecord{})
		return err
	}
	return nil
}

// RemoveGroup deletes group i, frees its title chain, and shifts
// subsequent groups down to keep the list contiguous.
func (t *TIF) RemoveGroup(i int) error {
	n := t.GetGroupCount()
	if i < 1 || i > n {
		return fmt.Errorf("himd: group %d out of range", i)
	}
	g := t.GetGroup(i)
	t.RemoveString(int(g.TitleStringIndex))
	for j := i; j < n; j++ {
		t.WriteGroup(j, t.GetGroup(j+1))
	}
	t.WriteGroup(n, GroupRecord{})
	return nil
}
