/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package authority

import (
	"errors"
	"time"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeAdmitted         = "admitted"
	outcomeAlreadyUsed      = "already_used"
	outcomeInvalid          = "invalid"
	outcomeNoActiveEvent    = "no_active_event"
	outcomeStoreUnavailable = "store_unavailable"
)

// Metrics holds the authority's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	redeems     *prometheus.CounterVec
	duration    prometheus.Histogram
	remaining   prometheus.Gauge
	activations prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		redeems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invitro_redeem_total",
			Help: "Redemption attempts by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invitro_redeem_duration_seconds",
			Help:    "Time spent redeeming a token against the store.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invitro_tokens_remaining",
			Help: "Unused tokens of the active event.",
		}),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invitro_event_activations_total",
			Help: "Number of event activations.",
		}),
	}
	m.Registry.MustRegister(m.redeems, m.duration, m.remaining, m.activations)
	return m
}

func (m *Metrics) observe(res model.RedeemResult, err error, elapsed time.Duration) {
	var outcome string
	switch {
	case errors.Is(err, domain.ErrNoActiveEvent):
		outcome = outcomeNoActiveEvent
	case err != nil:
		outcome = outcomeStoreUnavailable
	case res.Status == model.RedeemAdmitted:
		outcome = outcomeAdmitted
	case res.Status == model.RedeemAlreadyUsed:
		outcome = outcomeAlreadyUsed
	default:
		outcome = outcomeInvalid
	}
	m.redeems.WithLabelValues(outcome).Inc()
	if err == nil {
		m.duration.Observe(elapsed.Seconds())
	}
}
