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


package badger

import "github.com/poiesic/digest/storage"

// Repositories groups the repositories sharing one backend.
type Repositories struct {
	Records  storage.RecordRepository
	Analyses storage.AnalysisRepository
	Chunks   storage.ChunkRepository
}

// Close releases the repositories. The backend is left open.
func (r *Repositories) Close() error {
	var firstErr error
	for _, closer := range []interface{ Close() error }{r.Chunks, r.Records} {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewRepositories creates every repository on top of backend.
// Caller must close the repositories before the backend.
func NewRepositories(backend *Backend) (*Repositories, error) {
	records, err := NewRecordRepository(backend)
	if err != nil {
		return nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		records.Close()
		return nil, err
	}

	return &Repositories{
		Records:  records,
		Analyses: NewAnalysisRepository(backend),
		Chunks:   chunks,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must close both repos and backend when done.
func NewMemoryRepositories() (*Repositories, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, err
	}

	repos, err := NewRepositories(backend)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	return repos, backend, nil
}
