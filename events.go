package main

import (
	"log"
	"sync"
)

// EventRecorder appends audit events through the store on a background
// worker. Recording is best-effort: failures are logged and a full queue
// drops the event, so the primary operation is never delayed or failed.
type EventRecorder struct {
	store Store
	ch    chan Event
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func NewEventRecorder(store Store, buffer int) *EventRecorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &EventRecorder{
		store: store,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *EventRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.ch:
			r.insert(e)
		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					r.insert(e)
				default:
					return
				}
			}
		}
	}
}

func (r *EventRecorder) insert(e Event) {
	if err := r.store.InsertEvent(&e); err != nil {
		log.Printf("record event %s: %v", e.Name, err)
	}
}

// Record is safe to call on a nil recorder.
func (r *EventRecorder) Record(name string, userID *int64, metadata map[string]interface{}) {
	if r == nil {
		return
	}
	select {
	case r.ch <- Event{Name: name, UserID: userID, Metadata: metadata}:
	case <-r.done:
	default:
	}
}

func (r *EventRecorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
