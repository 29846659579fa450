package sched

// Time slice constants (spec §4.G): units are scheduler ticks, clamped to
// [MinTimeslice, MaxTimeslice]; a non-RT task's slice scales linearly with
// static priority between those bounds.
const (
	BaseTimeslice = 100
	MinTimeslice  = 10
	MaxTimeslice  = 2 * BaseTimeslice

	// rtFifoSlice stands in for "no quantum": a FIFO task's slice never
	// meaningfully expires by tick countdown, only by blocking or a
	// higher-priority RT task arriving.
	rtFifoSlice = 1 << 30
	rtRRSlice   = BaseTimeslice
)

// Logger is the subset of klog.Buffer the scheduler needs for tick/switch
// tracing.
type Logger interface {
	Printk(format string, args ...interface{})
}

// ContextSwitch is the platform primitive invoked when the current entity
// changes (spec §4.G "Schedule"; spec §9 calls the real CPU context switch
// an external collaborator — this is its seam).
type ContextSwitch func(prev, next *Entity)

// Runqueue is the single run structure owning the active/expired priority
// arrays (spec §3 "Runqueue").
type Runqueue struct {
	active, expired *priorityArray

	current *Entity
	idle    *Entity

	switches          uint64
	expirations       uint64
	lastExpireAtTick  uint64
	tickCount         uint64

	load [3]float64 // EMAs at decay ratios 3/4, 15/16, 63/64

	log      Logger
	onSwitch ContextSwitch
}

var loadDecay = [3]float64{3.0 / 4.0, 15.0 / 16.0, 63.0 / 64.0}

// NewRunqueue creates an empty runqueue. idle is returned by PickNext
// whenever both priority arrays are empty.
func NewRunqueue(idle *Entity, log Logger, onSwitch ContextSwitch) *Runqueue {
	rq := &Runqueue{
		active:   &priorityArray{},
		expired:  &priorityArray{},
		idle:     idle,
		current:  idle,
		log:      log,
		onSwitch: onSwitch,
	}
	return rq
}

// Current returns the currently running entity.
func (rq *Runqueue) Current() *Entity { return rq.current }

// NrRunning reports the number of tasks queued across both arrays. The
// running entity stays queued in its array, so it is included.
func (rq *Runqueue) NrRunning() int {
	return rq.active.nrQueued + rq.expired.nrQueued
}

// Switches reports the number of context switches performed.
func (rq *Runqueue) Switches() uint64 { return rq.switches }

// LoadAverages returns the three exponential moving averages of runnable
// count, conceptually the 1/5/15-minute load averages (spec §4.G).
func (rq *Runqueue) LoadAverages() [3]float64 { return rq.load }

// TimeSliceFor computes the quantum for e from its static priority (spec
// §4.G "Time slice"). Real-time tasks get a policy-fixed slice; non-RT
// tasks scale linearly between MaxTimeslice (most favored, lowest prio
// number in the band) and MinTimeslice (least favored).
func TimeSliceFor(e *Entity) int {
	if e.Policy.IsRealtime() {
		if e.Policy == PolicyFifo {
			return rtFifoSlice
		}
		return rtRRSlice
	}

	band := MaxPrio - RTPrioBand - 1 // number of non-RT priority steps
	if band <= 0 {
		return BaseTimeslice
	}
	offset := e.StaticPrio - RTPrioBand
	if offset < 0 {
		offset = 0
	}
	if offset > band {
		offset = band
	}
	span := MaxTimeslice - MinTimeslice
	slice := MaxTimeslice - offset*span/band
	if slice < MinTimeslice {
		slice = MinTimeslice
	}
	if slice > MaxTimeslice {
		slice = MaxTimeslice
	}
	return slice
}

// Enqueue sets e's slice if unset, then appends (or, if head, prepends) it
// to the active array at its effective priority (spec §4.G "Enqueue").
func (rq *Runqueue) Enqueue(e *Entity, head bool) {
	if e.Slice == 0 {
		e.Slice = TimeSliceFor(e)
	}
	e.inActive = true
	e.queued = true
	rq.active.enqueue(e, head)
}

// Dequeue removes e from whichever array currently holds it.
func (rq *Runqueue) Dequeue(e *Entity) {
	if !e.queued {
		return
	}
	if e.inActive {
		rq.active.dequeue(e)
	} else {
		rq.expired.dequeue(e)
	}
	e.queued = false
}

// PickNext consults the active array's bitmap for the lowest set bit —
// real-time priorities occupy the low end of the range so they are found
// first automatically, the "fair" band next, and the idle task is the
// final fallback when both arrays are empty (spec §4.G "Pick next").
func (rq *Runqueue) PickNext() *Entity {
	if e := rq.active.pickHead(); e != nil {
		return e
	}
	if e := rq.expired.pickHead(); e != nil {
		return e
	}
	return rq.idle
}

// Schedule picks the next entity; if it is already current, nothing
// happens. Otherwise it updates switch accounting and invokes the
// platform context switch (spec §4.G "Schedule").
func (rq *Runqueue) Schedule() {
	next := rq.PickNext()
	if next == rq.current {
		return
	}
	prev := rq.current
	rq.current = next
	rq.switches++
	if rq.onSwitch != nil {
		rq.onSwitch(prev, next)
	}
}

// Tick is called on every timer interrupt (spec §4.G "Tick"). It advances
// the current entity's runtime and decrements its slice; on expiry it
// refreshes the slice, rotates non-RT tasks to the expired array, swaps
// the arrays if active has drained, and finally invokes Schedule
// unconditionally.
func (rq *Runqueue) Tick() {
	rq.tickCount++
	cur := rq.current
	if cur != nil && cur != rq.idle {
		cur.Runtime++
		if cur.Slice > 0 {
			cur.Slice--
		}
		if cur.Slice <= 0 {
			cur.Slice = TimeSliceFor(cur)
			if !cur.Policy.IsRealtime() {
				rq.active.dequeue(cur)
				cur.inActive = false
				rq.expired.enqueue(cur, false)
			}
			if rq.active.empty() && !rq.expired.empty() {
				rq.swapArrays()
			}
		}
	}
	rq.updateLoad()
	rq.Schedule()
}

// swapArrays exchanges the active and expired array pointers in constant
// time (spec §3 "Runqueue" invariant) and records the expiration.
func (rq *Runqueue) swapArrays() {
	rq.active, rq.expired = rq.expired, rq.active
	for prio := 0; prio < MaxPrio; prio++ {
		for _, e := range rq.active.queues[prio] {
			e.inActive = true
		}
	}
	rq.expirations++
	rq.lastExpireAtTick = rq.tickCount
}

// Yield dequeues the current entity and re-enqueues it at the tail of its
// priority, then schedules (spec §4.G "Yield").
func (rq *Runqueue) Yield() {
	cur := rq.current
	if cur == nil || cur == rq.idle {
		return
	}
	rq.Dequeue(cur)
	rq.Enqueue(cur, false)
	rq.Schedule()
}

func (rq *Runqueue) updateLoad() {
	n := float64(rq.NrRunning())
	if rq.current != nil && rq.current != rq.idle && !rq.current.queued {
		n++
	}
	for i, decay := range loadDecay {
		rq.load[i] = rq.load[i]*decay + n*(1-decay)
	}
}
