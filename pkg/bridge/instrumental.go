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

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basenana/davstore/pkg/types"
)

var (
	bridgeOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_operation_latency_seconds",
			Help:    "The latency of bridge operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)
	bridgeOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_operation_errors",
			Help: "This count of bridge encountering errors",
		},
		[]string{"operation"},
	)
	reconcileDriftCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_listing_drift_total",
			Help: "This count of collection listings replaced by the remote view",
		},
	)
)

func init() {
	prometheus.MustRegister(
		bridgeOperationLatency,
		bridgeOperationErrorCounter,
		reconcileDriftCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	bridgeOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

func logOperationError(operation string, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, types.ErrNotFound) {
		bridgeOperationErrorCounter.WithLabelValues(operation).Inc()
	}
	return err
}
