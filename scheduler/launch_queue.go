package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/harbormaster-io/harbormaster/model"
	"github.com/jpillora/backoff"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// TaskUpdateKind names the kind of task-status transition reported by the
// external status bus.
type TaskUpdateKind string

const (
	// TaskLaunchConfirmed reports that a previously in-flight launch is now
	// confirmed running.
	TaskLaunchConfirmed TaskUpdateKind = "launch-confirmed"
	// TaskLaunchFailed reports that an in-flight launch did not start.
	TaskLaunchFailed TaskUpdateKind = "launch-failed"
	// TaskTerminated reports that a confirmed-running instance stopped.
	TaskTerminated TaskUpdateKind = "terminated"
)

// TaskUpdate is one task-status transition for the spec named by ID.
// Restart carries the spec's restart policy: when true, a failed or
// terminated instance is re-added to the launch demand.
type TaskUpdate struct {
	ID      model.PathID   `json:"id"`
	Kind    TaskUpdateKind `json:"kind"`
	Restart bool           `json:"restart"`
}

// QueuedSpec is a point-in-time snapshot of one spec's launch accounting.
type QueuedSpec struct {
	Spec                   model.RunSpec `json:"spec"`
	TasksLeftToLaunch      int           `json:"tasks_left_to_launch"`
	TaskLaunchesInFlight   int           `json:"task_launches_in_flight"`
	TasksLaunchedOrRunning int           `json:"tasks_launched_or_running"`
	BackOffUntil           time.Time     `json:"back_off_until"`
}

// Waiting reports whether the spec still has demand that the offer matcher
// should act on: launches not yet requested or not yet confirmed.
func (q QueuedSpec) Waiting() bool {
	return q.TasksLeftToLaunch != 0 || q.TaskLaunchesInFlight != 0
}

// TotalTaskCount is the sum of all three counters. It is conserved across
// every task-status transition; only Add and a terminal drop without
// restart change it.
func (q QueuedSpec) TotalTaskCount() int {
	return q.TasksLeftToLaunch + q.TaskLaunchesInFlight + q.TasksLaunchedOrRunning
}

// QueueOptions configures a LaunchQueue. The zero value is usable: the
// clock defaults to time.Now and the backoff parameters to 1s doubling up
// to 1h.
type QueueOptions struct {
	// Now supplies the clock the queue compares backoff timestamps
	// against. The queue never sleeps on it.
	Now func() time.Time
	// BackoffMinimum is the delay imposed by the first launch failure.
	BackoffMinimum time.Duration
	// BackoffMaximum caps the grown delay.
	BackoffMaximum time.Duration
	// BackoffFactor is the per-failure growth multiplier.
	BackoffFactor float64
}

func (o *QueueOptions) setDefaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.BackoffMinimum <= 0 {
		o.BackoffMinimum = defaultBackoffMinimum
	}
	if o.BackoffMaximum <= 0 {
		o.BackoffMaximum = defaultBackoffMaximum
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = defaultBackoffFactor
	}
}

type launchEntry struct {
	spec         model.RunSpec
	left         int
	inFlight     int
	running      int
	backOffUntil time.Time
	delay        *backoff.Backoff
}

func (e *launchEntry) snapshot() *QueuedSpec {
	return &QueuedSpec{
		Spec:                   e.spec,
		TasksLeftToLaunch:      e.left,
		TaskLaunchesInFlight:   e.inFlight,
		TasksLaunchedOrRunning: e.running,
		BackOffUntil:           e.backOffUntil,
	}
}

type pendingUpdate struct {
	update TaskUpdate
	result chan *QueuedSpec
}

// LaunchQueue tracks, per runnable spec, how many instances still need to
// be launched, are in flight, or are confirmed running, together with the
// launch backoff state. One queue instance is created at scheduler startup
// and torn down at shutdown via Close.
//
// Synchronous operations on the queue are linearized by a single lock with
// short critical sections. Task-status updates are applied asynchronously
// by a dedicated goroutine in submission order, so NotifyOfTaskUpdate never
// blocks the status bus; see its documentation for the purge race policy.
type LaunchQueue struct {
	opts QueueOptions

	mu       sync.Mutex
	entries  map[model.PathID]*launchEntry
	pending  []pendingUpdate
	stopping bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewLaunchQueue builds a queue and starts its update-applier goroutine.
func NewLaunchQueue(opts QueueOptions) *LaunchQueue {
	opts.setDefaults()
	q := &LaunchQueue{
		opts:    opts,
		entries: map[model.PathID]*launchEntry{},
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Close stops the applier goroutine after draining updates already
// submitted. It is safe to call more than once.
func (q *LaunchQueue) Close() {
	q.closeOnce.Do(func() { close(q.stop) })
	<-q.done
}

// Add increases the spec's launch demand by count, creating the accounting
// entry if none exists. Counts below one are treated as one. Add also
// refreshes the entry's spec snapshot, so the queue always launches the
// most recently added definition. It never fails.
func (q *LaunchQueue) Add(spec model.RunSpec, count int) {
	if count < 1 {
		count = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entry := q.ensureEntryLocked(spec)
	entry.left += count
}

// Get returns a snapshot of the spec's entry, or nil if none exists.
func (q *LaunchQueue) Get(id model.PathID) *QueuedSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry, ok := q.entries[id]; ok {
		return entry.snapshot()
	}
	return nil
}

// Count returns the spec's tasksLeftToLaunch only (not the total task
// count), or zero if no entry exists.
func (q *LaunchQueue) Count(id model.PathID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry, ok := q.entries[id]; ok {
		return entry.left
	}
	return 0
}

// List returns a snapshot of every current entry, in no particular order.
func (q *LaunchQueue) List() []QueuedSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	queued := make([]QueuedSpec, 0, len(q.entries))
	for _, entry := range q.entries {
		queued = append(queued, *entry.snapshot())
	}
	return queued
}

// ListRunSpecs returns the specs that currently have an entry.
func (q *LaunchQueue) ListRunSpecs() []model.RunSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	specs := make([]model.RunSpec, 0, len(q.entries))
	for _, entry := range q.entries {
		specs = append(specs, entry.spec)
	}
	return specs
}

// Purge removes the spec's entry entirely, counters and backoff state
// included. Purging an unknown id is a no-op. Task updates already
// submitted for the id are not undone: once the entry is gone they are
// dropped, and no update recreates it until a new Add.
func (q *LaunchQueue) Purge(id model.PathID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[id]; !ok {
		return
	}
	delete(q.entries, id)
	grip.Debug(message.Fields{
		"message": "purged launch queue entry",
		"spec":    string(id),
	})
}

// AddDelay advances the spec's backOffUntil after a launch failure, drawing
// the next delay from the entry's growing backoff source. Counters are not
// touched. Unknown specs are ignored.
func (q *LaunchQueue) AddDelay(spec model.RunSpec) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.entries[spec.RunSpecID()]
	if !ok {
		return
	}
	entry.backOffUntil = q.opts.Now().Add(entry.delay.Duration())
}

// ResetDelay clears the spec's backoff after a successful launch: the next
// failure starts over from the minimum delay, and backOffUntil no longer
// holds launches back. Unknown specs are ignored.
func (q *LaunchQueue) ResetDelay(spec model.RunSpec) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.entries[spec.RunSpecID()]
	if !ok {
		return
	}
	entry.delay.Reset()
	entry.backOffUntil = q.opts.Now()
}

// NoteLaunchAttempt records that the offer matcher issued a launch for the
// spec: demand moves from tasksLeftToLaunch into taskLaunchesInFlight. It
// returns the resulting snapshot, or nil if no entry exists. Issuing more
// launches than were demanded is an upstream bug and panics.
func (q *LaunchQueue) NoteLaunchAttempt(id model.PathID) *QueuedSpec {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.entries[id]
	if !ok {
		return nil
	}
	entry.left--
	entry.inFlight++
	q.assertCounters(entry, id)
	return entry.snapshot()
}

// NotifyOfTaskUpdate asynchronously applies a task-status transition to the
// entry for the update's spec id. It never blocks the caller: the update is
// queued for the applier goroutine and the returned channel yields the
// resulting snapshot once applied, then closes. Updates for the same spec
// id are applied in submission order; updates for different spec ids may be
// applied out of relative order.
//
// An update that finds no entry — the id was never added, or was purged
// while the update was queued — yields nil and is otherwise dropped; it
// never resurrects a purged entry.
func (q *LaunchQueue) NotifyOfTaskUpdate(update TaskUpdate) <-chan *QueuedSpec {
	result := make(chan *QueuedSpec, 1)
	q.mu.Lock()
	if q.stopping {
		// the queue is being torn down; complete immediately rather than
		// queue an update no applier will ever drain
		q.mu.Unlock()
		result <- nil
		close(result)
		return result
	}
	q.pending = append(q.pending, pendingUpdate{update: update, result: result})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return result
}

func (q *LaunchQueue) run() {
	for {
		select {
		case <-q.stop:
			// no update can be appended once stopping is set, so the
			// final drain below leaves nothing behind
			q.mu.Lock()
			q.stopping = true
			q.mu.Unlock()
			q.applyPending()
			close(q.done)
			return
		case <-q.wake:
			q.applyPending()
		}
	}
}

func (q *LaunchQueue) applyPending() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pending {
		snap := q.applyUpdateLocked(p.update)
		p.result <- snap
		close(p.result)
	}
	q.pending = nil
}

func (q *LaunchQueue) applyUpdateLocked(update TaskUpdate) *QueuedSpec {
	entry, ok := q.entries[update.ID]
	if !ok {
		grip.Debug(message.Fields{
			"message": "dropping task update for spec with no entry",
			"spec":    string(update.ID),
			"kind":    string(update.Kind),
		})
		return nil
	}
	switch update.Kind {
	case TaskLaunchConfirmed:
		entry.inFlight--
		entry.running++
	case TaskLaunchFailed:
		entry.inFlight--
		if update.Restart {
			entry.left++
		}
	case TaskTerminated:
		entry.running--
		if update.Restart {
			entry.left++
		}
	default:
		grip.Alert(message.Fields{
			"message": "ignoring task update of unknown kind",
			"spec":    string(update.ID),
			"kind":    string(update.Kind),
		})
		return entry.snapshot()
	}
	q.assertCounters(entry, update.ID)
	return entry.snapshot()
}

// ensureEntryLocked returns the spec's entry, creating one with zeroed
// counters and a fresh backoff source if needed, and refreshes the stored
// spec snapshot.
func (q *LaunchQueue) ensureEntryLocked(spec model.RunSpec) *launchEntry {
	id := spec.RunSpecID()
	entry, ok := q.entries[id]
	if !ok {
		entry = &launchEntry{
			spec:         spec,
			backOffUntil: q.opts.Now(),
			delay:        newLaunchDelay(q.opts),
		}
		q.entries[id] = entry
	}
	entry.spec = spec
	return entry
}

// assertCounters treats a negative counter as a bug upstream of the
// validation gate: it is surfaced immediately instead of being clamped and
// masking data corruption.
func (q *LaunchQueue) assertCounters(entry *launchEntry, id model.PathID) {
	if entry.left < 0 || entry.inFlight < 0 || entry.running < 0 {
		grip.Alert(message.Fields{
			"message":   "launch queue counter went negative",
			"spec":      string(id),
			"left":      entry.left,
			"in_flight": entry.inFlight,
			"running":   entry.running,
		})
		panic(fmt.Sprintf("launch queue counters for '%s' went negative (left=%d inFlight=%d running=%d)",
			id, entry.left, entry.inFlight, entry.running))
	}
}
