package gfx

// Handle identifies a registered object. The zero Handle is never issued.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was issued by a registry.
func (h Handle) Valid() bool { return h.gen != 0 }

// resource is the capability every registered object implements so the
// device-loss sweep can drive it without knowing its kind.
type resource interface {
	Kind() Kind
	release()
	rebuild() error
}

type slot struct {
	obj resource
	gen uint32
}

// registry tracks every live GPU-backed object of a device.
//
// Slots are reused through a free list and each reuse bumps the slot
// generation, so a stale Handle never resolves to a newer object.
// Not safe for concurrent use; owned by the submitting goroutine.
type registry struct {
	slots []slot
	free  []uint32
	live  int
}

// add registers obj and returns its handle.
func (r *registry) add(obj resource) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.obj = obj
	r.live++
	return Handle{index: idx, gen: s.gen}
}

// remove unregisters the object behind h. Stale or zero handles are ignored.
func (r *registry) remove(h Handle) {
	if !r.owns(h) {
		return
	}
	r.slots[h.index].obj = nil
	r.free = append(r.free, h.index)
	r.live--
}

// lookup returns the object behind h, or nil for a stale handle.
func (r *registry) lookup(h Handle) resource {
	if !r.owns(h) {
		return nil
	}
	return r.slots[h.index].obj
}

func (r *registry) owns(h Handle) bool {
	if !h.Valid() || int(h.index) >= len(r.slots) {
		return false
	}
	s := &r.slots[h.index]
	return s.gen == h.gen && s.obj != nil
}

// forEach visits every registered object once. The visitor may release,
// rebuild or unregister the object it is given; it must not unregister
// other objects.
func (r *registry) forEach(visit func(Handle, resource)) {
	for i := range r.slots {
		s := &r.slots[i]
		if s.obj == nil {
			continue
		}
		visit(Handle{index: uint32(i), gen: s.gen}, s.obj)
	}
}

// Len returns the number of registered objects.
func (r *registry) Len() int { return r.live }
