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

package metastore

import (
	"context"
	"errors"
	"time"

	"github.com/basenana/davstore/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metaOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relational_operation_latency_seconds",
			Help:    "The latency of relational store operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)
	metaOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relational_operation_errors",
			Help: "This count of relational store encountering errors",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		metaOperationLatency,
		metaOperationErrorCounter,
	)
}

func logOperationLatency(operation string, startAt time.Time) {
	metaOperationLatency.WithLabelValues(operation).Observe(time.Since(startAt).Seconds())
}

// logOperationError counts unexpected failures; misses and conflicts are regular outcomes.
func logOperationError(operation string, err error) {
	if err == nil || errors.Is(err, context.Canceled) ||
		errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrConflict) {
		return
	}
	metaOperationErrorCounter.WithLabelValues(operation).Inc()
}
