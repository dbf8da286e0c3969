package jobs

import "sync"

type subscriber struct {
	send chan Status
}

// hub fans status updates out to the subscribers of each job. A subscriber that
// cannot keep up is dropped.
type hub struct {
	mu   sync.Mutex
	jobs map[string]map[*subscriber]bool
}

func newHub() *hub {
	return &hub{jobs: make(map[string]map[*subscriber]bool)}
}

func (h *hub) subscribe(jobID string) (*subscriber, func()) {
	s := &subscriber{send: make(chan Status, 16)}
	h.mu.Lock()
	if h.jobs[jobID] == nil {
		h.jobs[jobID] = make(map[*subscriber]bool)
	}
	h.jobs[jobID][s] = true
	h.mu.Unlock()

	return s, func() { h.unsubscribe(jobID, s) }
}

func (h *hub) unsubscribe(jobID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.jobs[jobID]; subs != nil && subs[s] {
		delete(subs, s)
		close(s.send)
		if len(subs) == 0 {
			delete(h.jobs, jobID)
		}
	}
}

func (h *hub) publish(st Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.jobs[st.JobID] {
		select {
		case s.send <- st:
		default:
			close(s.send)
			delete(h.jobs[st.JobID], s)
		}
	}
}

// closeJob ends every subscription of a finished job.
func (h *hub) closeJob(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.jobs[jobID] {
		close(s.send)
	}
	delete(h.jobs, jobID)
}
