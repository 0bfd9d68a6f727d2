package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidegate_provider_attempts",
		Help: "The total number of third-party verification attempts by outcome",
	}, []string{"outcome"})

	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slidegate_provider_verdicts",
		Help: "The total number of third-party verdicts by provider and risk level",
	}, []string{"provider", "risk"})
)
