package lottery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	betsPlaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_bets_placed_total",
			Help: "Total number of accepted bets",
		},
	)

	betVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_bet_volume_minor_total",
			Help: "Sum of accepted bet amounts in minor units",
		},
	)

	roundsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_rounds_finished_total",
			Help: "Total number of finished rounds by outcome",
		},
		[]string{"outcome"}, // winner, empty
	)

	payoutVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_payout_minor_total",
			Help: "Sum of winnings paid in minor units",
		},
	)

	schedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_scheduler_ticks_total",
			Help: "Scheduler ticks by result",
		},
		[]string{"result"}, // advanced, idle, error
	)
)
