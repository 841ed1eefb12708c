package field

// Diff classifies the fields that change between two entity states.
type Diff struct {
	Added   map[string]any
	Removed map[string]any
	Updated map[string]any
}

// Changed reports whether the diff touches the named field at all.
func (d Diff) Changed(name string) bool {
	if _, ok := d.Added[name]; ok {
		return true
	}
	if _, ok := d.Removed[name]; ok {
		return true
	}
	_, ok := d.Updated[name]
	return ok
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// Fields returns every field name the diff touches.
func (d Diff) Fields() []string {
	names := make([]string, 0, len(d.Added)+len(d.Removed)+len(d.Updated))
	for k := range d.Added {
		names = append(names, k)
	}
	for k := range d.Removed {
		names = append(names, k)
	}
	for k := range d.Updated {
		names = append(names, k)
	}
	return names
}

// Compute diffs the old entity state against the new state for the keys
// present in the proposed patch. Fields absent from the schema fall back
// to plain scalar comparison rather than being rejected.
func Compute(old, next map[string]any, patch map[string]any, schema Schema) Diff {
	d := Diff{
		Added:   make(map[string]any),
		Removed: make(map[string]any),
		Updated: make(map[string]any),
	}
	for name := range patch {
		ft, ok := schema[name]
		if !ok {
			ft = ShortText
		}
		ov, nv := old[name], next[name]
		if Equal(ft, ov, nv) {
			continue
		}
		switch {
		case IsEmpty(ov):
			d.Added[name] = nv
		case IsEmpty(nv):
			d.Removed[name] = ov
		default:
			d.Updated[name] = nv
		}
	}
	return d
}

// Merge overlays a partial patch on an entity state, returning a new map.
// The inputs are never modified; nested maps in the base are copied
// before patch keys are folded in key-wise.
func Merge(base map[string]any, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		bm := anyMap(out[k])
		pm := anyMap(v)
		if bm != nil && pm != nil {
			merged := make(map[string]any, len(bm)+len(pm))
			for mk, mv := range bm {
				merged[mk] = mv
			}
			for mk, mv := range pm {
				merged[mk] = mv
			}
			out[k] = merged
			continue
		}
		out[k] = v
	}
	return out
}
