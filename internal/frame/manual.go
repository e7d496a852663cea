package frame

// Manual is a deterministic Scheduler for tests. Nothing runs until Step.
type Manual struct {
	q queue
}

// NewManual creates an idle manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(cb func()) Handle {
	return m.q.add(cb)
}

func (m *Manual) Cancel(h Handle) {
	m.q.remove(h)
}

// Pending returns the number of callbacks waiting for the next Step.
func (m *Manual) Pending() int {
	return m.q.pending()
}

// Step simulates one refresh: it runs every callback pending when Step was
// called and returns how many ran.
func (m *Manual) Step() int {
	ran := 0
	for _, h := range m.q.take() {
		if cb, ok := m.q.claim(h); ok {
			cb()
			ran++
		}
	}
	return ran
}
