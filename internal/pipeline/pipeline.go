package pipeline

import (
	"fmt"
	"sync"
)

// RunState is the pipeline-wide state.
type RunState int32

const (
	Stopped RunState = iota
	Paused
	Running
)

// Pipeline owns a set of blocks, a ready-queue, and the worker pool that
// drains it. The condition-variable-and-deque shape mirrors the source's
// scheduler fairly directly (sync.Cond is Go's native equivalent of a
// condvar); see DESIGN.md for why this stays closer to the source's
// concurrency model than a channel-based rewrite would.
type Pipeline struct {
	mu   sync.Mutex
	cond *sync.Cond

	blocks []*Block
	queue  []*Block

	threadsCount    int
	threadsRunning  int
	threadsWaiting  int
	threadsWakingUp int

	state       RunState
	relaxedMode bool
	scheduling  bool
	finished    bool
	stalled     bool
	lastErr     error

	minExtraQueueLoad int

	wg sync.WaitGroup
}

// New creates a pipeline with the given worker count. Callers should
// pass min(hardware_concurrency, #blocks).
func New(threads int) *Pipeline {
	if threads < 1 {
		threads = 1
	}
	p := &Pipeline{threadsCount: threads, minExtraQueueLoad: 1}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Add registers a filter (and, if it is a CompositeFilter, its
// transitively reachable inner filters) as a new block.
func (p *Pipeline) Add(name string, f Filter) *Block {
	b := newBlock(name, f)
	p.blocks = append(p.blocks, b)
	if cf, ok := f.(*CompositeFilter); ok {
		for i, inner := range cf.InnerFilters() {
			p.Add(fmt.Sprintf("%s.%d", name, i), inner)
		}
	}
	return b
}

// Blocks returns every registered block, for diagnostics.
func (p *Pipeline) Blocks() []*Block { return p.blocks }

// trySchedulingBlock implements the Idle -> Scheduling -> {Scheduled |
// Idle} transition. Must be called without p.mu held.
func (p *Pipeline) trySchedulingBlock(b *Block) {
	if !b.casState(StateIdle, StateScheduling) {
		return
	}

	p.mu.Lock()
	relaxed := p.relaxedMode
	p.mu.Unlock()

	if !b.runnable(relaxed) {
		b.setState(StateIdle)
		return
	}

	p.mu.Lock()
	p.queue = append(p.queue, b)
	b.setState(StateScheduled)
	shouldSignalOne := p.threadsWaiting > 0 && len(p.queue) > p.threadsRunning+p.minExtraQueueLoad
	if shouldSignalOne {
		p.cond.Signal()
	} else {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

func (p *Pipeline) scheduleAllBlocks() {
	for _, b := range p.blocks {
		p.trySchedulingBlock(b)
	}
}

// Start launches the worker pool and performs the initial scheduling
// pass. It is idempotent from Stopped; it is an error to call while
// already Running.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.state == Running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: already running")
	}
	p.state = Running
	p.relaxedMode = false
	p.finished = false
	p.stalled = false
	p.lastErr = nil
	p.mu.Unlock()

	for _, b := range p.blocks {
		b.reset()
		b.setState(StateIdle)
	}

	p.scheduleAllBlocks()

	for i := 0; i < p.threadsCount; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return nil
}

func (p *Pipeline) workerLoop() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for {
			if p.state == Stopped {
				p.mu.Unlock()
				return
			}
			// Paused takes priority over any queued work: a worker must
			// not start a new block while the pipeline is paused, even
			// if blocks are already sitting in the ready queue.
			if p.state == Paused {
				p.cond.Wait()
				continue
			}
			if len(p.queue) > 0 {
				break
			}
			if p.threadsRunning == 0 && !p.scheduling {
				if !p.relaxedMode {
					p.relaxedMode = true
					p.mu.Unlock()
					p.scheduleAllBlocks()
					p.mu.Lock()
					continue
				}
				// Second time with nothing to do: natural completion.
				p.state = Stopped
				p.finished = true
				if !p.anyOutputSawEOFLocked() {
					p.stalled = true
				}
				p.cond.Broadcast()
				p.mu.Unlock()
				return
			}
			p.threadsWaiting++
			p.cond.Wait()
			p.threadsWaiting--
		}

		b := p.queue[0]
		p.queue = p.queue[1:]
		p.threadsRunning++
		b.setState(StateRunning)
		p.mu.Unlock()

		err := b.process()

		p.mu.Lock()
		p.threadsRunning--
		if err != nil {
			if p.lastErr == nil {
				p.lastErr = err
			}
			p.state = Stopped
			p.finished = true
			p.cond.Broadcast()
			p.mu.Unlock()
			return
		}
		b.setState(StateIdle)
		p.mu.Unlock()

		p.trySchedulingBlock(b)
	}
}

func (p *Pipeline) anyOutputSawEOFLocked() bool {
	for _, b := range p.blocks {
		for _, out := range b.filter.Outputs() {
			if out.Edge.EOF() {
				return true
			}
		}
	}
	return false
}

// Wait blocks until the pipeline finishes (naturally or via Stop),
// re-raising the first captured filter error.
func (p *Pipeline) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Stalled reports whether the run completed without any output port
// signalling EOF.
func (p *Pipeline) Stalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stalled
}

// Pause requests every worker suspend after finishing its current block.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	p.state = Paused
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Resume returns a paused pipeline to Running, or starts a fresh run if
// called from Stopped.
func (p *Pipeline) Resume() error {
	p.mu.Lock()
	wasStopped := p.state == Stopped
	p.mu.Unlock()
	if wasStopped {
		return p.Start()
	}
	p.mu.Lock()
	p.state = Running
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// ResetBlocks clears the queue and resets every block's filter and
// buffers. It is only legal while Paused.
func (p *Pipeline) ResetBlocks() error {
	p.mu.Lock()
	if p.state != Paused {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: reset is only legal while paused")
	}
	p.queue = nil
	p.relaxedMode = false
	p.mu.Unlock()

	for _, b := range p.blocks {
		b.reset()
		b.setState(StateIdle)
	}

	p.scheduleAllBlocks()
	return nil
}

// Stop requests a full, cooperative shutdown and waits for every worker
// to exit before returning, re-raising any captured filter error.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	p.state = Stopped
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
