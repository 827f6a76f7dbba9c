package coalescer

// KeySet is the set of distinct keys collected for one batch. It is not threadsafe; the
// BatchManager only touches it while holding its own lock.
type KeySet[K comparable] struct {
	index map[K]struct{}
	keys  []K
}

func NewKeySet[K comparable]() *KeySet[K] {
	return &KeySet[K]{
		index: make(map[K]struct{}),
	}
}

// Merge adds the key to the set unless it is already present. It returns true only if the key
// was new. Merging the same key any number of times leaves the set as if it was merged once.
// If K is an interface type and the key holds a value that cannot be hashed (a slice, a map or
// a func), the set is left untouched and MalformedKeyError is returned.
func (s *KeySet[K]) Merge(key K) (added bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			added = false
			err = MalformedKeyError{Key: key}
		}
	}()
	if _, ok := s.index[key]; ok {
		return false, nil
	}
	s.index[key] = struct{}{}
	s.keys = append(s.keys, key)
	return true, nil
}

func (s *KeySet[K]) Has(key K) (found bool) {
	defer func() {
		if r := recover(); r != nil {
			found = false
		}
	}()
	_, found = s.index[key]
	return
}

func (s *KeySet[K]) Len() int {
	return len(s.keys)
}

// Keys returns a copy of the keys in the set. Processing functions must not depend on the order.
func (s *KeySet[K]) Keys() []K {
	out := make([]K, len(s.keys))
	copy(out, s.keys)
	return out
}
