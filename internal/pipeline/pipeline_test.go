package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildChain(total, batch, dataSize, padding, overlap int) (*Pipeline, *intSource, *intSink) {
	p := New(3)

	out1 := NewRingBuffer[int](dataSize, padding, overlap, 1, 1)
	src := newIntSource(out1, total, batch)
	p.Add("source", src)

	r1 := Connect(out1, 0, batch)
	out2 := NewRingBuffer[int](dataSize, padding, overlap, 1, 1)
	pass := newIntPassthrough(r1, out2, batch)
	p.Add("passthrough", pass)

	r2 := Connect(out2, 0, batch)
	sink := newIntSink(r2, batch)
	p.Add("sink", sink)

	return p, src, sink
}

func buildInfiniteChain(batch, dataSize, padding, overlap int) (*Pipeline, *intSource, *intSink) {
	p := New(3)

	out1 := NewRingBuffer[int](dataSize, padding, overlap, 1, 1)
	src := newInfiniteIntSource(out1, batch)
	p.Add("source", src)

	r1 := Connect(out1, 0, batch)
	out2 := NewRingBuffer[int](dataSize, padding, overlap, 1, 1)
	pass := newIntPassthrough(r1, out2, batch)
	p.Add("passthrough", pass)

	r2 := Connect(out2, 0, batch)
	sink := newIntSink(r2, batch)
	p.Add("sink", sink)

	return p, src, sink
}

func TestPipelineWrapCorrectness(t *testing.T) {
	const total = 10000
	for _, tc := range []struct{ batch, dataSize, padding, overlap int }{
		{batch: 7, dataSize: 16, padding: 4, overlap: 4},
		{batch: 3, dataSize: 8, padding: 2, overlap: 2},
		{batch: 31, dataSize: 64, padding: 8, overlap: 8},
	} {
		p, _, sink := buildChain(total, tc.batch, tc.dataSize, tc.padding, tc.overlap)
		require.NoError(t, p.Start())

		done := make(chan error, 1)
		go func() { done <- p.Wait() }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("pipeline did not finish")
		}

		require.False(t, p.Stalled())
		require.Len(t, sink.Got, total)
		for i, v := range sink.Got {
			require.Equal(t, i, v, "mismatch at index %d with batch=%d", i, tc.batch)
		}
	}
}

func TestPipelineResetReinitialisesState(t *testing.T) {
	p, _, sink := buildInfiniteChain(11, 32, 8, 8)
	require.NoError(t, p.Start())
	time.Sleep(20 * time.Millisecond)

	p.Pause()
	time.Sleep(5 * time.Millisecond) // let in-flight blocks finish and workers park on Wait()
	require.NoError(t, p.ResetBlocks())
	require.Empty(t, sink.Got, "reset must clear stale sink state")

	require.NoError(t, p.Resume())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Stop())
	require.NotEmpty(t, sink.Got, "pipeline should have produced data again after reset+resume")
	for i, v := range sink.Got {
		require.Equal(t, i, v, "sequence must restart from zero after reset")
	}
}
