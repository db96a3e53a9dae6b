package asset

// Name is the serializable reference to a renderable asset. It is the only
// form in which an asset ever crosses the wire.
type Name string

// Handle is whatever the rendering collaborator uses to draw an asset
// (a texture, a sprite index, ...). Handles are never serialized.
type Handle any

// Resolver maps asset names to handles. It is supplied by the rendering
// collaborator; the core only ever asks it for lookups.
type Resolver interface {
	Resolve(name Name) (Handle, bool)
}

// MapResolver is a Resolver backed by a plain map. Useful for headless
// clients and tests.
type MapResolver map[Name]Handle

func (m MapResolver) Resolve(name Name) (Handle, bool) {
	h, ok := m[name]
	return h, ok
}

// ResolveAll resolves every name in order. Misses leave a nil handle in
// the result and are reported back as a de-duplicated list.
func ResolveAll(r Resolver, names []Name) ([]Handle, []Name) {
	handles := make([]Handle, len(names))
	if r == nil {
		return handles, unique(names)
	}
	var missing []Name
	seen := make(map[Name]bool)
	for i, n := range names {
		h, ok := r.Resolve(n)
		if !ok {
			if !seen[n] {
				seen[n] = true
				missing = append(missing, n)
			}
			continue
		}
		handles[i] = h
	}
	return handles, missing
}

func unique(names []Name) []Name {
	var out []Name
	seen := make(map[Name]bool)
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
