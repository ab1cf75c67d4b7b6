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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/basenana/davstore/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	storageOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_latency_seconds",
			Help:    "The latency of storage operation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"storage_id", "operation"},
	)
	storageOperationErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operation_errors",
			Help: "This count of storage encountering errors",
		},
		[]string{"storage_id", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		storageOperationLatency,
		storageOperationErrorCounter,
	)
}

func logOperationLatency(storageID, operation string, startAt time.Time) {
	storageOperationLatency.WithLabelValues(storageID, operation).Observe(time.Since(startAt).Seconds())
}

func logOperationError(storageID, operation string, err error) error {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, types.ErrNotFound) {
		storageOperationErrorCounter.WithLabelValues(storageID, operation).Inc()
	}
	return err
}
