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


// Package rag answers questions about a single transcript.
//
// The Engine embeds the question, retrieves the transcript's most similar
// chunks, packs them into a bounded context in rank order and asks the text
// generator to answer from that context only. Every answer cites the chunks it
// was given.
//
// Questions are accepted once the record has a promoted chunk set. While a
// re-embedding runs or after it failed, the previous set keeps answering and
// the answer is marked stale; WithStaleReads(false) refuses those questions.
package rag
