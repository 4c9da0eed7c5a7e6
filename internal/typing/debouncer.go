package typing

import (
	"strings"
	"sync"
	"time"
)

// Commander emits typing signals to the remote peer.
type Commander interface {
	TypingStart(receiverID string) error
	TypingStop(receiverID string) error
}

// machine is the Active state for one receiver. gen distinguishes the
// current arming from a timer fire that lost the race to a re-arm.
type machine struct {
	timer *time.Timer
	gen   uint64
}

// Debouncer throttles outbound typing signals per receiver. It is a
// two-state machine: Idle -> Active on the first non-empty input change
// (emitting exactly one start), Active -> Idle when the inactivity timer
// fires or input empties (emitting exactly one stop). Keystrokes while
// Active only re-arm the timer.
type Debouncer struct {
	out        Commander
	inactivity time.Duration

	mu       sync.Mutex
	gen      uint64
	machines map[string]*machine
}

func NewDebouncer(out Commander, inactivity time.Duration) *Debouncer {
	return &Debouncer{
		out:        out,
		inactivity: inactivity,
		machines:   make(map[string]*machine),
	}
}

// InputChanged feeds the state machine with the current input text for a
// receiver.
func (d *Debouncer) InputChanged(receiverID, text string) {
	empty := strings.TrimSpace(text) == ""

	d.mu.Lock()
	m, active := d.machines[receiverID]

	if empty {
		if !active {
			d.mu.Unlock()
			return
		}
		m.timer.Stop()
		delete(d.machines, receiverID)
		d.mu.Unlock()
		d.out.TypingStop(receiverID)
		return
	}

	if active {
		m.timer.Stop()
		d.armLocked(m, receiverID)
		d.mu.Unlock()
		return
	}

	m = &machine{}
	d.machines[receiverID] = m
	d.armLocked(m, receiverID)
	d.mu.Unlock()
	d.out.TypingStart(receiverID)
}

// armLocked starts a fresh inactivity timer. The fire callback carries the
// arming's generation; resetting an existing timer would let an already
// fired callback pass as current.
func (d *Debouncer) armLocked(m *machine, receiverID string) {
	d.gen++
	gen := d.gen
	m.gen = gen
	m.timer = time.AfterFunc(d.inactivity, func() {
		d.expire(receiverID, gen)
	})
}

// MessageSent forces the receiver's machine back to Idle, emitting a stop
// if it was Active. Submitting a message always ends the typing signal.
func (d *Debouncer) MessageSent(receiverID string) {
	d.mu.Lock()
	m, active := d.machines[receiverID]
	if active {
		m.timer.Stop()
		delete(d.machines, receiverID)
	}
	d.mu.Unlock()

	if active {
		d.out.TypingStop(receiverID)
	}
}

// Active reports whether the machine for a receiver is in the Active state.
func (d *Debouncer) Active(receiverID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, active := d.machines[receiverID]
	return active
}

// Close stops all machines without emitting further commands.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, m := range d.machines {
		m.timer.Stop()
		delete(d.machines, id)
	}
}

func (d *Debouncer) expire(receiverID string, gen uint64) {
	d.mu.Lock()
	m, ok := d.machines[receiverID]
	if !ok || m.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.machines, receiverID)
	d.mu.Unlock()

	d.out.TypingStop(receiverID)
}
