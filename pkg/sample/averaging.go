package sample

import (
	"math"

	"github.com/itohio/glutensense/pkg/gsense"
)

// NewAverager returns a stage emitting, for every input reading, the mean
// resistance of the last windowSize readings. The output keeps the input's
// timestamp. A window of 1 or less passes readings through unchanged.
func NewAverager(windowSize int, bufSize int) Stage {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}

	return func(in <-chan gsense.Reading) <-chan gsense.Reading {
		out := make(chan gsense.Reading, bufSize)

		go func() {
			defer close(out)

			ring := make([]float64, windowSize)
			var sum float64
			n, head := 0, 0

			for r := range in {
				if n == windowSize {
					sum -= ring[head]
				} else {
					n++
				}
				ring[head] = r.Resistance
				sum += r.Resistance
				head = (head + 1) % windowSize

				out <- averaged(r, sum/float64(n))
			}
		}()

		return out
	}
}

// averaged rebuilds r around a new resistance value at milliohm resolution.
func averaged(r gsense.Reading, ohms float64) gsense.Reading {
	milli := math.Round(ohms * 1000)
	whole := math.Floor(milli / 1000)
	return gsense.Reading{
		Timestamp:  r.Timestamp,
		Resistance: milli / 1000,
		Integer:    uint32(whole),
		Fraction:   uint16(milli - whole*1000),
	}
}
