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

package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("no resource")
	ErrConflict       = errors.New("operation conflict")
	ErrLocked         = fmt.Errorf("%w: resource locked", ErrConflict)
	ErrBadRequest     = errors.New("bad request")
	ErrStorage        = errors.New("storage error")
	ErrNotImplemented = errors.New("not implemented")
	ErrTxClosed       = errors.New("transaction closed")
	ErrCommitFailed   = errors.New("commit failed after prepare")
)

// StorageError marks err as a backend failure while keeping it inspectable.
func StorageError(err error) error {
	if err == nil {
		return nil
	}
	if IsKnownError(err) {
		return err
	}
	return &storageError{err: err}
}

type storageError struct {
	err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStorage.Error(), e.err.Error())
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.err}
}

func IsKnownError(err error) bool {
	for _, known := range []error{ErrNotFound, ErrConflict, ErrBadRequest, ErrStorage,
		ErrNotImplemented, ErrTxClosed, ErrCommitFailed} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
