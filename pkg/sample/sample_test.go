package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/glutensense/pkg/gsense"
)

func readings(values ...float64) []gsense.Reading {
	now := time.Unix(1000, 0)
	out := make([]gsense.Reading, len(values))
	for i, v := range values {
		out[i] = gsense.Reading{Timestamp: now.Add(time.Duration(i) * 25 * time.Millisecond), Resistance: v}
	}
	return out
}

func feed(rs []gsense.Reading) <-chan gsense.Reading {
	ch := make(chan gsense.Reading, len(rs))
	for _, r := range rs {
		ch <- r
	}
	close(ch)
	return ch
}

func collect(t *testing.T, ch <-chan gsense.Reading) []gsense.Reading {
	t.Helper()
	var out []gsense.Reading
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatal("stage output did not close")
			return out
		}
	}
}

func TestAverager(t *testing.T) {
	in := readings(10, 20, 30, 40, 50.5)
	out := collect(t, NewAverager(3, 0)(feed(in)))

	require.Len(t, out, 5)
	want := []float64{10, 15, 20, 30, 40.167}
	for i, r := range out {
		assert.InDelta(t, want[i], r.Resistance, 1e-9, "reading %d", i)
		assert.Equal(t, in[i].Timestamp, r.Timestamp)
	}
	assert.Equal(t, uint32(40), out[4].Integer)
	assert.Equal(t, uint16(167), out[4].Fraction)
}

func TestAverager_PassThrough(t *testing.T) {
	in := readings(1.5, 2.25, 3)
	out := collect(t, NewAverager(0, 1)(feed(in)))
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Resistance, out[i].Resistance)
	}
}

func TestTee(t *testing.T) {
	in := readings(1, 2, 3)
	outs := Tee(feed(in), 2, 0)
	require.Len(t, outs, 2)

	for _, out := range outs {
		got := collect(t, out)
		assert.Equal(t, in, got)
	}
}

func TestChain(t *testing.T) {
	in := readings(10, 20, 30)
	out := collect(t, Chain(NewAverager(2, 0), NewAverager(1, 0))(feed(in)))
	require.Len(t, out, 3)
	assert.Equal(t, 25.0, out[2].Resistance)
}

func TestDownsample_NoDownsampling(t *testing.T) {
	in := readings(1, 2, 3)

	result := Downsample(nil, in, 10)
	assert.Equal(t, in, result)

	dst := make([]gsense.Reading, 0, 10)
	result = Downsample(dst, in, 10)
	assert.Equal(t, in, result)
	assert.Equal(t, cap(dst), cap(result), "should reuse dst")
}

func TestDownsample_Decimates(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i)
	}
	in := readings(values...)

	result := Downsample(make([]gsense.Reading, 0, 20), in, 10)
	require.Len(t, result, 10)
	assert.Equal(t, in[0], result[0])
	assert.Equal(t, 90.0, result[9].Resistance)
}

func TestDownsampleFloats(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5}
	assert.Equal(t, []float64{0, 2, 4}, DownsampleFloats(nil, values, 3))
	assert.Equal(t, values, DownsampleFloats(nil, values, 0))
	assert.Empty(t, DownsampleFloats(nil, nil, 3))
}
