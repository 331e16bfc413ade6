package build

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copr_build_submissions_total", Help: "Copr builds submitted",
	})
	submissionErrorsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copr_build_submission_errors_total", Help: "Copr build submissions that failed",
	})
	srpmFailuresMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srpm_build_failures_total", Help: "SRPM builds that failed",
	})
	submissionDurationMetric = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "copr_build_submission_seconds", Help: "Time spent submitting copr builds",
	})
)
