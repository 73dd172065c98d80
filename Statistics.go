// Copyright 2021 Edgecast Inc

package icmpping

import (
	"math"
	"time"
)

// Statistics accumulates round-trip times in milliseconds without keeping
// the individual samples
type Statistics struct {
	Transmitted  uint64
	Received     uint64
	Min          float64
	Max          float64
	Sum          float64
	SumOfSquares float64
}

// Summary is the derived view of Statistics.
// Min, Avg, Max and StdDev are only meaningful when HasRTT is true.
type Summary struct {
	Transmitted uint64
	Received    uint64
	LossPercent float64
	HasRTT      bool
	Min         float64
	Avg         float64
	Max         float64
	StdDev      float64
}

// NewStatistics returns Statistics with min at its +Inf sentinel
func NewStatistics() Statistics {
	return Statistics{Min: math.Inf(1)}
}

// Transmit counts one sent echo request
func (s *Statistics) Transmit() {
	s.Transmitted++
}

// Record adds one matched reply
func (s *Statistics) Record(rtt float64) {
	s.Received++
	if rtt < s.Min {
		s.Min = rtt
	}
	if rtt > s.Max {
		s.Max = rtt
	}
	s.Sum += rtt
	s.SumOfSquares += rtt * rtt
}

// RecordDuration is Record for a time.Duration
func (s *Statistics) RecordDuration(rtt time.Duration) {
	s.Record(DurationToMillis(rtt))
}

// Summary derives loss, average and population standard deviation
func (s *Statistics) Summary() (summary Summary) {
	summary.Transmitted = s.Transmitted
	summary.Received = s.Received

	if s.Transmitted > 0 {
		summary.LossPercent = 100 - 100*float64(s.Received)/float64(s.Transmitted)
	}

	if s.Received == 0 {
		return summary
	}

	n := float64(s.Received)
	mean := s.Sum / n
	variance := s.SumOfSquares/n - mean*mean
	// float error can push this just below zero
	if variance < 0 {
		variance = 0
	}

	summary.HasRTT = true
	summary.Min = s.Min
	summary.Avg = mean
	summary.Max = s.Max
	summary.StdDev = math.Sqrt(variance)
	return summary
}

// DurationToMillis converts d to fractional milliseconds
func DurationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
