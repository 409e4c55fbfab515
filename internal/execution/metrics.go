package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_item_transitions_total",
		Help: "Procedure item transitions by action and outcome.",
	}, []string{"action", "outcome"})

	queueSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "execution_queue_items",
		Help:    "Items returned per worklist partition.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	}, []string{"partition"})

	notesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execution_notes_added_total",
		Help: "Notes appended to procedure items.",
	})
)
