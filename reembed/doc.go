// Package reembed rebuilds the chunk embeddings of every analyzed record,
// typically after switching to a different embedding model.
//
// Records are forced through the embedding stage of a pipeline in batches.
// Each record keeps answering questions from its current chunks until its new
// generation is promoted. Records with an embedding run in flight are skipped.
package reembed
