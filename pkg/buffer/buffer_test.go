package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/diodeflow/errors"
	"github.com/c360/diodeflow/metric"
)

func TestCircularBuffer_WriteRead(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	for i := 1; i <= 3; i++ {
		require.NoError(t, buf.Write(i))
	}
	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, 4, buf.Capacity())
	assert.False(t, buf.IsFull())
	assert.False(t, buf.IsEmpty())

	// FIFO order
	for i := 1; i <= 3; i++ {
		item, ok := buf.Read()
		require.True(t, ok)
		assert.Equal(t, i, item)
	}

	_, ok := buf.Read()
	assert.False(t, ok)
	assert.True(t, buf.IsEmpty())
}

func TestCircularBuffer_DropOldest(t *testing.T) {
	var dropped []string
	buf, err := NewCircularBuffer[string](2,
		WithOverflowPolicy[string](DropOldest),
		WithDropCallback[string](func(item string) { dropped = append(dropped, item) }),
	)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	require.NoError(t, buf.Write("a"))
	require.NoError(t, buf.Write("b"))
	require.NoError(t, buf.Write("c")) // evicts "a", exactly one

	assert.Equal(t, []string{"a"}, dropped)
	assert.Equal(t, 2, buf.Size())

	item, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, "b", item)
	item, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "c", item)

	assert.Equal(t, int64(1), buf.Stats().Drops())
	assert.Equal(t, int64(1), buf.Stats().Overflows())
}

func TestCircularBuffer_DropNewest(t *testing.T) {
	var dropped []int
	buf, err := NewCircularBuffer[int](2,
		WithOverflowPolicy[int](DropNewest),
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }),
	)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // dropped, buffer keeps 1 and 2

	assert.Equal(t, []int{3}, dropped)

	item, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 1, item)
}

func TestCircularBuffer_BlockPolicy(t *testing.T) {
	buf, err := NewCircularBuffer[int](1, WithOverflowPolicy[int](Block))
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	require.NoError(t, buf.Write(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Blocks until the reader frees a slot
		assert.NoError(t, buf.Write(2))
	}()

	time.Sleep(20 * time.Millisecond)
	item, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 1, item)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked writer was not released")
	}
}

func TestCircularBuffer_ReadWithTimeout(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	// Immediate return when an item is available
	require.NoError(t, buf.Write(7))
	item, ok := buf.ReadWithTimeout(time.Second)
	require.True(t, ok)
	assert.Equal(t, 7, item)

	// Times out on empty buffer
	start := time.Now()
	_, ok = buf.ReadWithTimeout(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCircularBuffer_ReadWithTimeout_WakesOnWrite(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	result := make(chan int, 1)
	go func() {
		item, ok := buf.ReadWithTimeout(2 * time.Second)
		if ok {
			result <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, buf.Write(42))

	select {
	case item := <-result:
		assert.Equal(t, 42, item)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by write")
	}
}

func TestCircularBuffer_ReadWithTimeout_WakesOnClose(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		_, ok := buf.ReadWithTimeout(5 * time.Second)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, buf.Close())

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by close")
	}
}

func TestCircularBuffer_ReadBatch(t *testing.T) {
	buf, err := NewCircularBuffer[int](8)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Write(i))
	}

	batch := buf.ReadBatch(3)
	assert.Equal(t, []int{0, 1, 2}, batch)

	// Fewer remaining than requested
	batch = buf.ReadBatch(10)
	assert.Equal(t, []int{3, 4}, batch)

	assert.Nil(t, buf.ReadBatch(3))
	assert.Nil(t, buf.ReadBatch(0))
}

func TestCircularBuffer_WriteAfterClose(t *testing.T) {
	buf, err := NewCircularBuffer[int](2)
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close()) // idempotent

	err = buf.Write(2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBufferClosed)

	// Buffered items remain readable after close
	item, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 1, item)
}

func TestCircularBuffer_Clear(t *testing.T) {
	var dropped []int
	buf, err := NewCircularBuffer[int](4,
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }),
	)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	buf.Clear()
	assert.True(t, buf.IsEmpty())
	assert.Equal(t, []int{0, 1, 2}, dropped)
}

func TestCircularBuffer_MinimumCapacity(t *testing.T) {
	buf, err := NewCircularBuffer[int](0)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	assert.Equal(t, 1, buf.Capacity())
}

func TestCircularBuffer_Stats(t *testing.T) {
	buf, err := NewCircularBuffer[int](2)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // DropOldest eviction
	buf.Read()

	stats := buf.Stats()
	assert.Equal(t, int64(3), stats.Writes())
	assert.Equal(t, int64(1), stats.Reads())
	assert.Equal(t, int64(1), stats.Drops())
	assert.Equal(t, int64(2), stats.MaxSize())
	assert.Equal(t, int64(1), stats.CurrentSize())

	summary := stats.Summary()
	assert.Equal(t, int64(3), summary.Writes)
	assert.InDelta(t, 1.0/3.0, summary.DropRate, 1e-9)

	stats.Reset()
	assert.Equal(t, int64(0), stats.Writes())
}

func TestCircularBuffer_WithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	buf, err := NewCircularBuffer[int](2,
		WithMetrics[int](registry, "test-buffer"),
	)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3))
	buf.Read()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range metricFamilies {
		found[mf.GetName()] = true
	}

	assert.True(t, found["diodeflow_buffer_writes_total"])
	assert.True(t, found["diodeflow_buffer_reads_total"])
	assert.True(t, found["diodeflow_buffer_evictions_total"])
	assert.True(t, found["diodeflow_buffer_size"])
}

func TestCircularBuffer_ConcurrentAccess(t *testing.T) {
	buf, err := NewCircularBuffer[int](64)
	require.NoError(t, err)
	defer func() { _ = buf.Close() }()

	var wg sync.WaitGroup
	writers := 4
	perWriter := 100

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = buf.Write(base + i)
			}
		}(w * perWriter)
	}

	read := 0
	var readWg sync.WaitGroup
	readWg.Add(1)
	go func() {
		defer readWg.Done()
		for read < writers*perWriter {
			if _, ok := buf.ReadWithTimeout(100 * time.Millisecond); ok {
				read++
				continue
			}
			// Give up once writers are done and the buffer drained
			if buf.IsEmpty() {
				return
			}
		}
	}()

	wg.Wait()
	readWg.Wait()

	stats := buf.Stats()
	assert.Equal(t, int64(writers*perWriter), stats.Writes()+stats.Drops())
}

func TestOverflowPolicy_String(t *testing.T) {
	assert.Equal(t, "DropOldest", DropOldest.String())
	assert.Equal(t, "DropNewest", DropNewest.String())
	assert.Equal(t, "Block", Block.String())
	assert.Equal(t, "Unknown", OverflowPolicy(42).String())
}
