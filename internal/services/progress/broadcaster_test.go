package progress

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/models"
)

type recordingListener struct {
	mu       sync.Mutex
	payloads []*models.ProgressPayload
	fail     bool
}

func (r *recordingListener) OnProgress(payload *models.ProgressPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("listener down")
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestNotifyFansOutToTaskListeners(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	l1 := &recordingListener{}
	l2 := &recordingListener{}
	other := &recordingListener{}
	b.Add("task-1", l1)
	b.Add("task-1", l2)
	b.Add("task-2", other)

	b.Notify("task-1", &models.ProgressPayload{TaskID: "task-1", ScrapePhase: models.PhaseLinkCollection, Progress: 10})

	assert.Equal(t, 1, l1.count())
	assert.Equal(t, 1, l2.count())
	assert.Equal(t, 0, other.count())
}

func TestFailingListenerDoesNotInterruptSiblings(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	bad := &recordingListener{fail: true}
	good := &recordingListener{}
	b.Add("task-1", bad)
	b.Add("task-1", good)

	b.Notify("task-1", &models.ProgressPayload{TaskID: "task-1", Progress: 50})

	assert.Equal(t, 1, good.count())
}

func TestRemoveAndClear(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	l1 := &recordingListener{}
	l2 := &recordingListener{}
	b.Add("task-1", l1)
	b.Add("task-1", l2)

	b.Remove("task-1", l1)
	b.Notify("task-1", &models.ProgressPayload{TaskID: "task-1"})
	assert.Equal(t, 0, l1.count())
	assert.Equal(t, 1, l2.count())

	b.Clear("task-1")
	b.Notify("task-1", &models.ProgressPayload{TaskID: "task-1"})
	assert.Equal(t, 1, l2.count())
}

func TestConcurrentAddRemoveDuringNotify(t *testing.T) {
	b := NewBroadcaster(arbor.NewLogger())

	stable := &recordingListener{}
	b.Add("task-1", stable)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &recordingListener{}
			for j := 0; j < 50; j++ {
				b.Add("task-1", l)
				b.Notify("task-1", &models.ProgressPayload{TaskID: "task-1"})
				b.Remove("task-1", l)
			}
		}()
	}
	wg.Wait()

	assert.Greater(t, stable.count(), 0)
}
