// Package pipeline drives records through the two enrichment stages.
//
// The Pipeline type is the only way to start work on a record. Its gateway
// methods (TriggerAnalysis, TriggerEmbedding, ForceEmbedding) perform an atomic
// check-and-set on the record's stage state, assign a fresh task id and queue
// the task for a worker. They return immediately with a status snapshot.
//
// Workers run in per-stage ants pools:
//   - Analysis asks the text generator for a summary, key points and action
//     items, stores the result and chains a TriggerEmbedding call.
//   - Embedding chunks the text, embeds every chunk and swaps the new chunk
//     generation in atomically. Nothing is visible until every chunk succeeded.
//
// Provider errors never escape a worker. They are retried per the retry.Policy
// and end up as a FAILED stage with a human readable error on the record.
package pipeline
