/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package connector

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/davstore/pkg/types"
)

var (
	connectorOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connector_operation_latency_seconds",
			Help:    "The latency of connector operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
		},
		[]string{"operation"},
	)
	connectorOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_operation_errors",
			Help: "This count of connector encountering errors",
		},
		[]string{"operation"},
	)
	cacheHitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_cache_hits_total",
			Help: "This count of transaction cache hits",
		},
		[]string{"cache"},
	)
	cacheMissCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_cache_misses_total",
			Help: "This count of transaction cache misses",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(
		connectorOperationLatency,
		connectorOperationErrorCounter,
		cacheHitCounter,
		cacheMissCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	connectorOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

func logOperationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, types.ErrNotFound) && !errors.Is(err, types.ErrConflict) {
		connectorOperationErrorCounter.WithLabelValues(operation).Inc()
	}
	return err
}
