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

package metrics

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/basenana/davstore/config"
)

// InitSentry reports to dsn, or to SENTRY_DSN when dsn is empty. Without
// either nothing is reported.
func InitSentry(dsn string) error {
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          config.VersionInfo().Tag,
		TracesSampleRate: 0.6,
	})
}

func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

func Flush() {
	sentry.Flush(2 * time.Second)
}
