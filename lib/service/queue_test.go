package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/micropay-ai/micropay.go/common"
)

func TestQueueAdmitDedupes(t *testing.T) {
	q := NewJobQueue(4)

	job, admitted, err := q.Admit("order-1", GenerationParams{Prompt: "a cat"})
	assert.NoError(t, err)
	assert.True(t, admitted)
	assert.NotNil(t, job)

	again, admitted, err := q.Admit("order-1", GenerationParams{Prompt: "a cat"})
	assert.NoError(t, err)
	assert.False(t, admitted)
	assert.Same(t, job, again)
	assert.Equal(t, 1, q.Len())
}

func TestQueueAdmitConcurrent(t *testing.T) {
	q := NewJobQueue(64)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admissions := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, admitted, err := q.Admit("order-1", GenerationParams{})
			assert.NoError(t, err)
			if admitted {
				mu.Lock()
				admissions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admissions)
	assert.Equal(t, 1, q.Len())
}

func TestQueueFull(t *testing.T) {
	q := NewJobQueue(1)

	_, _, err := q.Admit("order-1", GenerationParams{})
	assert.NoError(t, err)
	_, _, err = q.Admit("order-2", GenerationParams{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueueForget(t *testing.T) {
	q := NewJobQueue(4)

	job, _, _ := q.Admit("order-1", GenerationParams{})
	job.SetState(common.OrderStateGenerated)
	q.Forget("order-1")

	assert.Nil(t, q.Get("order-1"))
	assert.Equal(t, 0, q.Len())
}
