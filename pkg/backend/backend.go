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

package backend

import (
	"context"
	"time"

	"github.com/basenana/davstore/pkg/types"
)

// Backend is one physical store. All ids passed to a Session are canonical.
type Backend interface {
	Name() string
	Namespace() types.Namespace
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// Session stages mutations until Commit. Reads observe the session's own writes.
type Session interface {
	Reader
	Writer
	Locker

	Search(ctx context.Context, query types.SearchQuery) ([]*types.Resource, error)

	Prepare(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Reader interface {
	// IsCollection reports false for missing resources.
	IsCollection(ctx context.Context, id types.ResourceID) (bool, error)
	Get(ctx context.Context, id types.ResourceID) (*types.Resource, error)
	ListChildren(ctx context.Context, id types.ResourceID) ([]types.Child, error)
}

type Writer interface {
	Add(ctx context.Context, res *types.Resource, verifyEtag bool) error
	ChangeProperties(ctx context.Context, id types.ResourceID, diff types.Properties) error
	Move(ctx context.Context, from, to types.ResourceID) error
	Copy(ctx context.Context, from, to types.ResourceID) error
	Delete(ctx context.Context, id types.ResourceID) error
}

type Locker interface {
	// Lock returns the token of the active lock. An empty token asks the backend to mint one.
	Lock(ctx context.Context, id types.ResourceID, principal string, until time.Time, token string) (string, error)
	// Unlock with an empty token releases any lock.
	Unlock(ctx context.Context, id types.ResourceID, token string) error
	// Locked returns the stored lock, expired or not; Owned is left to the caller.
	Locked(ctx context.Context, id types.ResourceID) (types.LockInfo, error)
}

// DirectoryCanonicalizer lets a backend opt out of appending "/" to directory ids.
type DirectoryCanonicalizer interface {
	CanonicalizeDirectories() bool
}
