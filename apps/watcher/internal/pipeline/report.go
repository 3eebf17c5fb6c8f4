package pipeline

import "sync"

type atomicReport struct {
	mu     sync.RWMutex
	report Report
	set    bool
}

func (a *atomicReport) Store(r Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report = r
	a.set = true
}

func (a *atomicReport) Load() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report, a.set
}
