package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/harbormaster-io/harbormaster/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LaunchQueueSuite struct {
	suite.Suite
	queue *LaunchQueue
	now   time.Time
	spec  *model.App
}

func TestLaunchQueueSuite(t *testing.T) {
	suite.Run(t, new(LaunchQueueSuite))
}

func (s *LaunchQueueSuite) SetupTest() {
	s.now = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	s.queue = NewLaunchQueue(QueueOptions{
		Now:            func() time.Time { return s.now },
		BackoffMinimum: time.Second,
		BackoffMaximum: time.Minute,
		BackoffFactor:  2,
	})
	s.spec = &model.App{ID: "/prod/web", CPUs: 1, Mem: 128, Instances: 5}
}

func (s *LaunchQueueSuite) TearDownTest() {
	s.queue.Close()
}

// await applies the update and waits for the applier to finish it.
func (s *LaunchQueueSuite) await(update TaskUpdate) *QueuedSpec {
	select {
	case snap := <-s.queue.NotifyOfTaskUpdate(update):
		return snap
	case <-time.After(5 * time.Second):
		s.FailNow("task update was never applied")
		return nil
	}
}

func (s *LaunchQueueSuite) TestAddRegistersDemand() {
	s.queue.Add(s.spec, 5)

	s.Equal(5, s.queue.Count(s.spec.ID))
	snap := s.queue.Get(s.spec.ID)
	s.Require().NotNil(snap)
	s.Equal(5, snap.TasksLeftToLaunch)
	s.Zero(snap.TaskLaunchesInFlight)
	s.Zero(snap.TasksLaunchedOrRunning)
	s.True(snap.Waiting())
	s.Equal(5, snap.TotalTaskCount())
}

func (s *LaunchQueueSuite) TestAddAccumulatesAndRefreshesSpec() {
	s.queue.Add(s.spec, 2)
	rescaled := &model.App{ID: s.spec.ID, CPUs: 2, Mem: 256, Instances: 9}
	s.queue.Add(rescaled, 3)

	s.Equal(5, s.queue.Count(s.spec.ID))
	snap := s.queue.Get(s.spec.ID)
	s.Require().NotNil(snap)
	s.Equal(rescaled, snap.Spec, "the last added definition wins")
}

func (s *LaunchQueueSuite) TestAddTreatsLowCountsAsOne() {
	s.queue.Add(s.spec, 0)
	s.Equal(1, s.queue.Count(s.spec.ID))
}

func (s *LaunchQueueSuite) TestGetAndCountOfUnknownSpec() {
	s.Nil(s.queue.Get("/nope"))
	s.Zero(s.queue.Count("/nope"))
}

func (s *LaunchQueueSuite) TestListAndListRunSpecs() {
	other := &model.Pod{ID: "/prod/cache", Instances: 2}
	s.queue.Add(s.spec, 1)
	s.queue.Add(other, 2)

	s.Len(s.queue.List(), 2)

	ids := map[model.PathID]bool{}
	for _, spec := range s.queue.ListRunSpecs() {
		ids[spec.RunSpecID()] = true
	}
	s.True(ids[s.spec.ID])
	s.True(ids[other.ID])
}

func (s *LaunchQueueSuite) TestNoteLaunchAttempt() {
	s.queue.Add(s.spec, 2)

	snap := s.queue.NoteLaunchAttempt(s.spec.ID)
	s.Require().NotNil(snap)
	s.Equal(1, snap.TasksLeftToLaunch)
	s.Equal(1, snap.TaskLaunchesInFlight)
	s.Equal(2, snap.TotalTaskCount(), "issuing a launch conserves the total")

	s.Nil(s.queue.NoteLaunchAttempt("/nope"))
}

func (s *LaunchQueueSuite) TestLaunchConfirmation() {
	s.queue.Add(s.spec, 1)
	s.queue.NoteLaunchAttempt(s.spec.ID)

	snap := s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskLaunchConfirmed})
	s.Require().NotNil(snap)
	s.Zero(snap.TaskLaunchesInFlight)
	s.Equal(1, snap.TasksLaunchedOrRunning)
	s.Zero(snap.TasksLeftToLaunch)
	s.Equal(1, snap.TotalTaskCount(), "confirmation conserves the total")
}

func (s *LaunchQueueSuite) TestLaunchFailureWithRestart() {
	s.queue.Add(s.spec, 1)
	s.queue.NoteLaunchAttempt(s.spec.ID)

	snap := s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskLaunchFailed, Restart: true})
	s.Require().NotNil(snap)
	s.Zero(snap.TaskLaunchesInFlight)
	s.Equal(1, snap.TasksLeftToLaunch)
	s.Equal(1, snap.TotalTaskCount())
}

func (s *LaunchQueueSuite) TestTerminationWithoutRestartDropsTheInstance() {
	s.queue.Add(s.spec, 1)
	s.queue.NoteLaunchAttempt(s.spec.ID)
	s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskLaunchConfirmed})

	snap := s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskTerminated})
	s.Require().NotNil(snap)
	s.Zero(snap.TotalTaskCount())
	s.False(snap.Waiting())
}

func (s *LaunchQueueSuite) TestTerminationWithRestartReaddsDemand() {
	s.queue.Add(s.spec, 1)
	s.queue.NoteLaunchAttempt(s.spec.ID)
	s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskLaunchConfirmed})

	snap := s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskTerminated, Restart: true})
	s.Require().NotNil(snap)
	s.Equal(1, snap.TasksLeftToLaunch)
	s.Zero(snap.TasksLaunchedOrRunning)
}

func (s *LaunchQueueSuite) TestPurgeRemovesEverything() {
	s.queue.Add(s.spec, 3)
	s.queue.AddDelay(s.spec)

	s.queue.Purge(s.spec.ID)

	s.Nil(s.queue.Get(s.spec.ID))
	s.Zero(s.queue.Count(s.spec.ID))
	s.Empty(s.queue.List())

	// purging an unknown id is a no-op
	s.queue.Purge(s.spec.ID)
}

func (s *LaunchQueueSuite) TestUpdateForPurgedSpecIsDropped() {
	s.queue.Add(s.spec, 1)
	s.queue.Purge(s.spec.ID)

	snap := s.await(TaskUpdate{ID: s.spec.ID, Kind: TaskLaunchConfirmed})
	s.Nil(snap, "updates racing with purge are dropped")
	s.Nil(s.queue.Get(s.spec.ID), "a purged entry is never resurrected")
}

func (s *LaunchQueueSuite) TestUpdateForUnknownSpecIsDropped() {
	snap := s.await(TaskUpdate{ID: "/never/added", Kind: TaskTerminated})
	s.Nil(snap)
}

func (s *LaunchQueueSuite) TestAddDelayGrowsMonotonically() {
	s.queue.Add(s.spec, 1)

	var previous time.Time
	for i := 0; i < 5; i++ {
		s.queue.AddDelay(s.spec)
		snap := s.queue.Get(s.spec.ID)
		s.Require().NotNil(snap)
		s.False(snap.BackOffUntil.Before(previous), "backOffUntil must never move backwards")
		s.True(snap.BackOffUntil.After(s.now))
		previous = snap.BackOffUntil
	}

	// the first two delays double: 1s then 2s
	s.queue.ResetDelay(s.spec)
	s.queue.AddDelay(s.spec)
	s.Equal(s.now.Add(time.Second), s.queue.Get(s.spec.ID).BackOffUntil)
	s.queue.AddDelay(s.spec)
	s.Equal(s.now.Add(2*time.Second), s.queue.Get(s.spec.ID).BackOffUntil)
}

func (s *LaunchQueueSuite) TestResetDelayClearsBackoff() {
	s.queue.Add(s.spec, 1)
	s.queue.AddDelay(s.spec)
	s.Require().True(s.queue.Get(s.spec.ID).BackOffUntil.After(s.now))

	s.queue.ResetDelay(s.spec)
	s.Equal(s.now, s.queue.Get(s.spec.ID).BackOffUntil)
}

func (s *LaunchQueueSuite) TestDelayOpsOnUnknownSpecAreNoOps() {
	s.queue.AddDelay(s.spec)
	s.queue.ResetDelay(s.spec)
	s.Nil(s.queue.Get(s.spec.ID))
}

func TestConcurrentAddsConverge(t *testing.T) {
	queue := NewLaunchQueue(QueueOptions{})
	defer queue.Close()
	spec := &model.App{ID: "/stress/app", Instances: 1}

	const adds = 128
	var wg sync.WaitGroup
	wg.Add(adds)
	for i := 0; i < adds; i++ {
		go func() {
			defer wg.Done()
			queue.Add(spec, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, adds, queue.Count(spec.ID), "no add may be lost")
}

func TestUpdatesForOneSpecApplyInSubmissionOrder(t *testing.T) {
	queue := NewLaunchQueue(QueueOptions{})
	defer queue.Close()
	spec := &model.App{ID: "/ordered/app", Instances: 1}

	queue.Add(spec, 4)
	for i := 0; i < 4; i++ {
		require.NotNil(t, queue.NoteLaunchAttempt(spec.ID))
	}

	// four confirmations then one restart-failure would underflow if the
	// failure were applied early; completion order proves submission order
	results := make([]<-chan *QueuedSpec, 0, 4)
	for i := 0; i < 4; i++ {
		results = append(results, queue.NotifyOfTaskUpdate(TaskUpdate{ID: spec.ID, Kind: TaskLaunchConfirmed}))
	}
	last := queue.NotifyOfTaskUpdate(TaskUpdate{ID: spec.ID, Kind: TaskTerminated, Restart: true})

	for i, result := range results {
		snap := <-result
		require.NotNil(t, snap)
		assert.Equal(t, i+1, snap.TasksLaunchedOrRunning)
	}
	snap := <-last
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.TasksLaunchedOrRunning)
	assert.Equal(t, 1, snap.TasksLeftToLaunch)
	assert.Equal(t, 4, snap.TotalTaskCount())
}

func TestNotifyAfterCloseCompletesWithNil(t *testing.T) {
	queue := NewLaunchQueue(QueueOptions{})
	spec := &model.App{ID: "/late/app", Instances: 1}
	queue.Add(spec, 1)
	queue.Close()

	// the update must not be applied, and its completion channel must not
	// be left dangling
	snap, ok := <-queue.NotifyOfTaskUpdate(TaskUpdate{ID: spec.ID, Kind: TaskLaunchConfirmed})
	require.True(t, ok)
	assert.Nil(t, snap)
	assert.Equal(t, 1, queue.Count(spec.ID))
}

func TestCloseDrainsSubmittedUpdates(t *testing.T) {
	queue := NewLaunchQueue(QueueOptions{})
	spec := &model.App{ID: "/drain/app", Instances: 1}
	queue.Add(spec, 1)
	queue.NoteLaunchAttempt(spec.ID)

	result := queue.NotifyOfTaskUpdate(TaskUpdate{ID: spec.ID, Kind: TaskLaunchConfirmed})
	queue.Close()

	snap, ok := <-result
	require.True(t, ok)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.TasksLaunchedOrRunning)
}
