package runner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/gazette/internal/models"
)

func TestControllerBeginRejectsDuplicate(t *testing.T) {
	c := NewController()

	first, err := c.Begin("task-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = c.Begin("task-1")
	assert.ErrorIs(t, err, ErrTaskAlreadyRunning)

	c.Finish("task-1")
	_, err = c.Begin("task-1")
	assert.NoError(t, err)
}

func TestControllerCancelSemantics(t *testing.T) {
	c := NewController()

	// cancelling a task that is not running reports false
	assert.False(t, c.Cancel("task-absent"))

	control, err := c.Begin("task-1")
	require.NoError(t, err)
	assert.False(t, control.Cancelled())

	assert.True(t, c.Cancel("task-1"))
	assert.True(t, control.Cancelled())

	// idempotent
	assert.True(t, c.Cancel("task-1"))

	c.Finish("task-1")
	assert.False(t, c.Cancel("task-1"))
}

func TestControllerStateSnapshot(t *testing.T) {
	c := NewController()

	assert.Nil(t, c.State("task-1"))

	control, err := c.Begin("task-1")
	require.NoError(t, err)
	control.set(models.PhaseLinkCollection, 20, "collecting")

	state := c.State("task-1")
	require.NotNil(t, state)
	assert.Equal(t, "task-1", state.TaskID)
	assert.Equal(t, models.PhaseLinkCollection, state.ScrapePhase)
	assert.Equal(t, 20, state.Progress)
	assert.Equal(t, "collecting", state.Message)
	assert.False(t, state.StartTime.IsZero())

	c.Finish("task-1")
	assert.Nil(t, c.State("task-1"))
}

func TestControllerRunningTaskIDs(t *testing.T) {
	c := NewController()

	_, err := c.Begin("task-a")
	require.NoError(t, err)
	_, err = c.Begin("task-b")
	require.NoError(t, err)

	ids := c.RunningTaskIDs()
	assert.ElementsMatch(t, []string{"task-a", "task-b"}, ids)
	assert.True(t, c.IsRunning("task-a"))

	c.Finish("task-a")
	assert.False(t, c.IsRunning("task-a"))
	assert.True(t, c.IsRunning("task-b"))
}

func TestControllerConcurrentAccess(t *testing.T) {
	c := NewController()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "task-" + string(rune('a'+n%10))
			if _, err := c.Begin(id); err == nil {
				c.Cancel(id)
				c.State(id)
				c.Finish(id)
			} else {
				c.IsRunning(id)
				c.Cancel(id)
			}
		}(i)
	}
	wg.Wait()
}
