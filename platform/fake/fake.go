// Package fake implements an in memory platform. Every driver records the calls made to it,
// detects overlapping calls on the same bus and accepts injected failures, which is what the bus
// packages are tested against.
package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/hal/platform"
)

// Call is one recorded driver call.
type Call struct {
	Method string
	Bus    int
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d)", c.Method, c.Bus)
}

// recorder is embedded in every fake driver.
type recorder struct {
	mu       sync.Mutex
	calls    []Call
	faults   map[string]error
	active   map[int]int
	overlaps int

	// Delay is slept inside every data call, to widen the window in which overlapping calls
	// would be noticed.
	Delay time.Duration
}

// Fail makes every later call to method return err. A nil err clears the fault.
func (r *recorder) Fail(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.faults == nil {
		r.faults = map[string]error{}
	}
	if err == nil {
		delete(r.faults, method)
		return
	}
	r.faults[method] = err
}

// Calls returns the calls recorded so far.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns how many times method was called.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Overlaps returns how many calls started while another call on the same bus was running.
func (r *recorder) Overlaps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlaps
}

// Reset forgets recorded calls and faults.
func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.faults = nil
	r.overlaps = 0
}

// record logs a call that does not block and returns its injected fault.
func (r *recorder) record(method string, bus int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Bus: bus})
	return r.faults[method]
}

// enter logs a data call and marks the bus busy until the returned function runs.
func (r *recorder) enter(method string, bus int) (func(), error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Method: method, Bus: bus})
	if r.active == nil {
		r.active = map[int]int{}
	}
	r.active[bus]++
	if r.active[bus] > 1 {
		r.overlaps++
	}
	err := r.faults[method]
	delay := r.Delay
	r.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return func() {
		r.mu.Lock()
		r.active[bus]--
		r.mu.Unlock()
	}, err
}

// Platform bundles one of each fake driver.
type Platform struct {
	I2C      *I2C
	SPI      *SPI
	UART     *UART
	GPIO     *GPIO
	Watchdog *Watchdog
}

// New returns a fresh fake platform. The watchdog runs on clk, which may be a clock.Mock.
func New(clk clock.Clock) *Platform {
	gpio := NewGPIO()
	return &Platform{
		I2C:      NewI2C(),
		SPI:      NewSPI(),
		UART:     NewUART(),
		GPIO:     gpio,
		Watchdog: NewWatchdog(clk),
	}
}

// Drivers exposes the fake as a platform.Drivers.
func (p *Platform) Drivers() platform.Drivers {
	return platform.Drivers{
		I2C:      p.I2C,
		SPI:      p.SPI,
		UART:     p.UART,
		GPIO:     p.GPIO,
		ISR:      p.GPIO.ISR(),
		Watchdog: p.Watchdog,
	}
}
