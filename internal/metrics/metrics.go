package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RewardsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starpoints_rewards_issued_total",
		Help: "Rewards credited, by kind.",
	}, []string{"kind"})

	DuplicateClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starpoints_duplicate_claims_total",
		Help: "Reward events rejected by the idempotency registry.",
	})

	WithdrawalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starpoints_withdrawals_created_total",
		Help: "Withdrawal requests accepted.",
	})

	WithdrawalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starpoints_withdrawals_resolved_total",
		Help: "Withdrawal requests resolved, by outcome.",
	}, []string{"outcome"})

	InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starpoints_insufficient_funds_total",
		Help: "Operations rejected for insufficient available balance.",
	})

	VerifierErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starpoints_verifier_errors_total",
		Help: "Task verifier calls that failed or timed out.",
	})
)
