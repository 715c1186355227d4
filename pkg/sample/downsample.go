package sample

import "github.com/itohio/glutensense/pkg/gsense"

// Downsample reduces readings to at most maxPoints by decimation, for
// display. It reuses dst when its capacity suffices and returns the result.
func Downsample(dst []gsense.Reading, readings []gsense.Reading, maxPoints int) []gsense.Reading {
	return decimate(dst, readings, maxPoints)
}

// DownsampleFloats is Downsample for plain series such as derivatives.
func DownsampleFloats(dst []float64, values []float64, maxPoints int) []float64 {
	return decimate(dst, values, maxPoints)
}

func decimate[T any](dst []T, src []T, maxPoints int) []T {
	if maxPoints <= 0 || len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]T, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := 0; i < maxPoints; i++ {
		dst = append(dst, src[int(float64(i)*step)])
	}
	return dst
}
