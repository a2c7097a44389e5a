package lock

// Keys returns the number of keys currently held or awaited.
func (l *Local) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
