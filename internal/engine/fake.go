package engine

import "fmt"

// Fake is a deterministic Engine used by package tests in iocycle and
// driver: it registers ports exactly like a real engine would, backs
// each with a plain float32 buffer, and lets a test install a
// ProcessFunc to shape what Process does to those buffers each cycle —
// copy input to output (loopback), apply gain, or inject a failure to
// exercise EngineProcessError path.
type Fake struct {
	bufferSize int
	sampleRate int
	activated  bool

	ports   []portState
	byName  map[string]Port

	// ProcessFunc is invoked by Process once buffers are sized; it
	// receives the engine so it can read/write PortGetBuffer. A nil
	// ProcessFunc makes Process a no-op that returns 0.
	ProcessFunc func(e *Fake, nframes int) int

	MonitorCalls   []MonitorCall
	ClockSyncCalls []ClockSyncCall
}

type portState struct {
	name   string
	flags  PortFlags
	buffer []float32
}

type MonitorCall struct {
	Channel int
	On      bool
}

type ClockSyncCall struct {
	Channel int
	Status  ClockSyncStatus
}

func NewFake() *Fake {
	return &Fake{byName: make(map[string]Port)}
}

func (e *Fake) SetBufferSize(frames int) error {
	e.bufferSize = frames
	for i := range e.ports {
		e.ports[i].buffer = make([]float32, frames)
	}
	return nil
}

func (e *Fake) SetSampleRate(hz int) error {
	e.sampleRate = hz
	return nil
}

func (e *Fake) RegisterPort(name string, flags PortFlags) (Port, error) {
	if _, exists := e.byName[name]; exists {
		return 0, fmt.Errorf("engine: port %q already registered", name)
	}
	var p = Port(len(e.ports))
	e.ports = append(e.ports, portState{name: name, flags: flags, buffer: make([]float32, e.bufferSize)})
	e.byName[name] = p
	return p, nil
}

func (e *Fake) PortGetBuffer(port Port, nframes int) []float32 {
	var buf = e.ports[int(port)].buffer
	if len(buf) < nframes {
		return buf
	}
	return buf[:nframes]
}

func (e *Fake) Process(nframes int) int {
	if e.ProcessFunc == nil {
		return 0
	}
	return e.ProcessFunc(e, nframes)
}

func (e *Fake) Activate() error {
	e.activated = true
	return nil
}

func (e *Fake) NotifyMonitor(channel int, on bool) {
	e.MonitorCalls = append(e.MonitorCalls, MonitorCall{Channel: channel, On: on})
}

func (e *Fake) NotifyClockSync(channel int, status ClockSyncStatus) {
	e.ClockSyncCalls = append(e.ClockSyncCalls, ClockSyncCall{Channel: channel, Status: status})
}

// Activated reports whether Activate has been called, for assertions.
func (e *Fake) Activated() bool { return e.activated }

// BufferSize reports the most recently negotiated buffer size.
func (e *Fake) BufferSize() int { return e.bufferSize }

// SampleRate reports the most recently negotiated sample rate.
func (e *Fake) SampleRate() int { return e.sampleRate }

var _ Engine = (*Fake)(nil)
