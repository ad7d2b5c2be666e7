package badger

import (
	"encoding/binary"

	"github.com/poiesic/digest/core"
)

// Key prefixes for different data types
const (
	recordPrefix   = "rec:"
	recordIDSeq    = "recseq"
	analysisPrefix = "ana:"
	chunkPrefix    = "chk:"
	generationSeq  = "genseq"
)

// appendUint64 writes v in BigEndian order so lexicographic sort matches numeric order.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// makeRecordKey generates a key for a record by ID.
// Format: prefix + id(8)
func makeRecordKey(id core.ID) []byte {
	return appendUint64([]byte(recordPrefix), uint64(id))
}

// makeAnalysisKey generates the key of the analysis result owned by a record.
func makeAnalysisKey(recordID core.ID) []byte {
	return appendUint64([]byte(analysisPrefix), uint64(recordID))
}

// makeRecordChunkPrefix covers every generation of a record's chunks.
// Format: prefix + recordID(8)
func makeRecordChunkPrefix(recordID core.ID) []byte {
	return appendUint64([]byte(chunkPrefix), uint64(recordID))
}

// makeGenerationPrefix covers one generation of a record's chunks.
// Format: prefix + recordID(8) + generation(8)
func makeGenerationPrefix(recordID core.ID, generation uint64) []byte {
	return appendUint64(makeRecordChunkPrefix(recordID), generation)
}

// makeChunkKey generates the key of a single chunk.
// Format: prefix + recordID(8) + generation(8) + sequence(4)
func makeChunkKey(recordID core.ID, generation uint64, sequence int) []byte {
	return binary.BigEndian.AppendUint32(makeGenerationPrefix(recordID, generation), uint32(sequence))
}

// chunkKeyGeneration extracts the generation from a chunk key.
func chunkKeyGeneration(key []byte) uint64 {
	offset := len(chunkPrefix) + 8
	if len(key) < offset+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[offset : offset+8])
}
