package sample

import (
	"github.com/itohio/glutensense/pkg/gsense"
)

// DefaultBufSize is the output channel buffer of every stage.
const DefaultBufSize = 100

// Stage is a channel pipeline step over instrument readings. The returned
// channel is closed when in is closed.
type Stage func(in <-chan gsense.Reading) <-chan gsense.Reading

// Chain composes stages left to right.
func Chain(stages ...Stage) Stage {
	return func(in <-chan gsense.Reading) <-chan gsense.Reading {
		out := in
		for _, s := range stages {
			out = s(out)
		}
		return out
	}
}

// Tee copies every reading from in to n output channels. A slow consumer
// blocks the others, so every branch must be drained.
func Tee(in <-chan gsense.Reading, n int, bufSize int) []<-chan gsense.Reading {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}

	outs := make([]chan gsense.Reading, n)
	ro := make([]<-chan gsense.Reading, n)
	for i := range outs {
		outs[i] = make(chan gsense.Reading, bufSize)
		ro[i] = outs[i]
	}

	go func() {
		defer func() {
			for _, out := range outs {
				close(out)
			}
		}()
		for r := range in {
			for _, out := range outs {
				out <- r
			}
		}
	}()

	return ro
}
