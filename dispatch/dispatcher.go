package dispatch

// Dispatcher serializes callback re-entry into a single logical context:
// every RPC completion is posted here rather than invoked directly from
// the goroutine that received it, so a driver touched from a completion
// never races with a driver touched from another completion or from the
// owning goroutine's own advance calls.
type Dispatcher struct {
	jobs chan func()
	quit chan struct{}
}

// NewDispatcher returns a Dispatcher with reasonable buffering for a
// single swap driver's RPC traffic.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		jobs: make(chan func(), 32),
		quit: make(chan struct{}),
	}
}

// Run drains posted callbacks one at a time until Stop is called. It is
// meant to be run on its own goroutine by whatever owns the driver.
func (d *Dispatcher) Run() {
	for {
		select {
		case fn := <-d.jobs:
			fn()
		case <-d.quit:
			return
		}
	}
}

// Post schedules fn to run on the Dispatcher's goroutine. It may be
// called from any goroutine, including from within a job itself. Post
// blocks while the queue already holds 32 jobs; called from within a job
// in that state, it blocks Run.
func (d *Dispatcher) Post(fn func()) {
	select {
	case d.jobs <- fn:
	case <-d.quit:
	}
}

// Stop terminates Run. Jobs already queued are discarded.
func (d *Dispatcher) Stop() {
	close(d.quit)
}
