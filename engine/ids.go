package engine

// idSource mints agent identifiers from a strided partition of the ID
// space: source i with stride w yields base+i, base+i+w, base+i+2w and
// so on. Giving every subdomain its own source lets workers mint IDs
// for division children concurrently without coordination and without
// overlap, and keeps allocation reproducible for a fixed worker count.
type idSource struct {
	next   uint64
	stride uint64
}

func newIDSource(base uint64, index, stride int) idSource {
	return idSource{next: base + uint64(index), stride: uint64(stride)}
}

func (s *idSource) take() uint64 {
	id := s.next
	s.next += s.stride
	return id
}
