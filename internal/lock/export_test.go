package lock

func SlotCount(l *Local) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
