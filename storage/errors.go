// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/digest/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	// It wraps core.ErrNotFound so callers can match either.
	ErrNotFound = fmt.Errorf("storage: %w", core.ErrNotFound)

	// ErrTransactionFailed indicates that a transaction kept conflicting and was abandoned.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrDimensionMismatch indicates a query vector whose length differs from the stored vectors.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimensions differ", ErrInvalidQuery)

	// ErrUnknownGeneration indicates promotion of a generation that has no staged chunks.
	ErrUnknownGeneration = errors.New("unknown chunk generation")
)
