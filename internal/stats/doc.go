// Package stats keeps rolling statistics over telemetry samples.
//
// A MovingAverage averages the samples younger than its time window and
// reports nothing until it holds at least minSamples of them:
//
//	avg := stats.NewMovingAverage(5*time.Minute, 3)
//	avg.Add(21.4, time.Now())
//	if v, ok := avg.Average(time.Now()); ok {
//	    ...
//	}
//
// Samples are timed by the caller, normally at ingest.
package stats
