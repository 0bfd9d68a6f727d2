package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slidegate_challenges_issued",
		Help: "The total number of slider challenges issued",
	})

	// TimeTaken tracks how long humans spend dragging the slider, from the
	// client-reported duration of accepted attempts.
	TimeTaken = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slidegate_time_taken",
		Help:    "The drag duration of successful verifications (milliseconds)",
		Buckets: prometheus.ExponentialBucketsRange(100, 30000, 16),
	})
)
