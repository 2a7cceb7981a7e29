package stateforward

import "sync"

// Observer receives diagnostic notifications as an Interpreter runs. All
// methods have default no-op implementations via BaseObserver; embed it to
// implement only the callbacks a particular observer cares about.
type Observer interface {
	OnEnter(interp *Interpreter, vertex VertexID)
	OnExit(interp *Interpreter, vertex VertexID)
	OnTransition(interp *Interpreter, source, target VertexID, evt *Event)
	OnCompletion(interp *Interpreter, vertex VertexID)
	OnTerminate(interp *Interpreter, vertex VertexID)
	OnDiscarded(interp *Interpreter, evt *Event)
	OnStarted(interp *Interpreter)
	OnStopped(interp *Interpreter)
}

// ExtendedObserver is implemented by observers that also want to be told
// about internal faults (a panicking behavior, a guard timeout). Most
// observers don't need this; ObserverManager falls back to silently
// swallowing the error when no registered observer implements it.
type ExtendedObserver interface {
	Observer
	OnError(interp *Interpreter, err error)
}

// BaseObserver supplies no-op defaults for every Observer method.
type BaseObserver struct{}

func (BaseObserver) OnEnter(*Interpreter, VertexID)                    {}
func (BaseObserver) OnExit(*Interpreter, VertexID)                     {}
func (BaseObserver) OnTransition(*Interpreter, VertexID, VertexID, *Event) {}
func (BaseObserver) OnCompletion(*Interpreter, VertexID)               {}
func (BaseObserver) OnTerminate(*Interpreter, VertexID)                {}
func (BaseObserver) OnDiscarded(*Interpreter, *Event)                  {}
func (BaseObserver) OnStarted(*Interpreter)                            {}
func (BaseObserver) OnStopped(*Interpreter)                            {}

// ObserverManager fans diagnostics out to every registered Observer,
// isolating each call with recover() so a faulty observer can never bring
// down the dispatch goroutine.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []Observer
}

func newObserverManager() *ObserverManager {
	return &ObserverManager{}
}

// Add registers observer. Safe to call while the interpreter is running.
func (m *ObserverManager) Add(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, observer)
}

// Remove unregisters observer, if present.
func (m *ObserverManager) Remove(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.observers {
		if o == observer {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *ObserverManager) snapshot() []Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Observer, len(m.observers))
	copy(out, m.observers)
	return out
}

func (m *ObserverManager) safely(observer Observer, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if ext, ok := observer.(ExtendedObserver); ok {
				defer func() { recover() }()
				ext.OnError(nil, newDispatchError(ErrCodeBehaviorFailed, "", "", nil))
			}
		}
	}()
	fn()
}

func (m *ObserverManager) notifyEnter(interp *Interpreter, vertex VertexID) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnEnter(interp, vertex) })
	}
}

func (m *ObserverManager) notifyExit(interp *Interpreter, vertex VertexID) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnExit(interp, vertex) })
	}
}

func (m *ObserverManager) notifyTransition(interp *Interpreter, source, target VertexID, evt *Event) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnTransition(interp, source, target, evt) })
	}
}

func (m *ObserverManager) notifyCompletion(interp *Interpreter, vertex VertexID) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnCompletion(interp, vertex) })
	}
}

func (m *ObserverManager) notifyTerminate(interp *Interpreter, vertex VertexID) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnTerminate(interp, vertex) })
	}
}

func (m *ObserverManager) notifyDiscarded(interp *Interpreter, evt *Event) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnDiscarded(interp, evt) })
	}
}

func (m *ObserverManager) notifyStarted(interp *Interpreter) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnStarted(interp) })
	}
}

func (m *ObserverManager) notifyStopped(interp *Interpreter) {
	for _, o := range m.snapshot() {
		o := o
		m.safely(o, func() { o.OnStopped(interp) })
	}
}

func (m *ObserverManager) notifyError(interp *Interpreter, err error) {
	for _, o := range m.snapshot() {
		ext, ok := o.(ExtendedObserver)
		if !ok {
			continue
		}
		ext := ext
		m.safely(o, func() { ext.OnError(interp, err) })
	}
}
