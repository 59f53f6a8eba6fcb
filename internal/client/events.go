package client

import (
	"sort"
	"sync"
)

// EventName names a session event.
type EventName string

const (
	EventBeforeLogin    EventName = "beforeLogin"
	EventLogin          EventName = "login"
	EventBeforeLogout   EventName = "beforeLogout"
	EventLogout         EventName = "logout"
	EventRevoked        EventName = "revoked"
	EventUnrevoked      EventName = "unrevoked"
	EventTokenRefreshed EventName = "tokenRefreshed"
	EventPluginLoaded   EventName = "plugin:loaded"
)

// Event is what listeners receive. Only the fields relevant to Name are
// set.
type Event struct {
	Name   EventName
	Token  string
	Plugin Plugin
}

// emitter dispatches events synchronously, in subscription order.
type emitter struct {
	mu        sync.Mutex
	listeners map[EventName]map[int]func(Event)
	nextID    int
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventName]map[int]func(Event))}
}

func (e *emitter) on(name EventName, fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if e.listeners[name] == nil {
		e.listeners[name] = make(map[int]func(Event))
	}
	e.listeners[name][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[name], id)
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	subs := e.listeners[ev.Name]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, subs[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
