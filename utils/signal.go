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

package utils

import (
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
)

var (
	terminalCh = make(chan os.Signal, 1)
	dumpCh     = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(terminalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go dumpGoroutines()
}

// HandleTerminalSignal closes the returned channel on the first terminal
// signal and exits on the second.
func HandleTerminalSignal() chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-terminalCh
		close(ch)
		<-terminalCh
		os.Exit(2)
	}()
	return ch
}

// SIGUSR1 prints every goroutine stack to stderr.
func dumpGoroutines() {
	for range dumpCh {
		_ = pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
	}
}

func Shutdown() {
	terminalCh <- syscall.SIGQUIT
}
