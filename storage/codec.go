package storage

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/digest/core"
)

// MUS serializers for the domain types. Each follows the mus-go contract:
// Size reports the encoded length, Marshal writes into a buffer of at least
// that length and returns the bytes written, Unmarshal returns the value, the
// bytes consumed and any decoding error.
var (
	IDMUS             = idSerializer{}
	RecordMUS         = recordSerializer{}
	AnalysisResultMUS = analysisSerializer{}
	ChunkMUS          = chunkSerializer{}
)

type idSerializer struct{}

func (idSerializer) Marshal(v core.ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }
func (idSerializer) Size(v core.ID) int               { return varint.Uint64.Size(uint64(v)) }

func (idSerializer) Unmarshal(bs []byte) (core.ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return core.ID(v), n, err
}

// Field helpers. Each unmarshal helper advances *n and stops on the first error.

func sizeTime(t time.Time) int { return varint.Int64.Size(t.UnixMicro()) }

func marshalTime(t time.Time, bs []byte) int { return varint.Int64.Marshal(t.UnixMicro(), bs) }

func unmarshalTime(bs []byte, n *int) (time.Time, error) {
	v, m, err := varint.Int64.Unmarshal(bs[*n:])
	*n += m
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}

func unmarshalString(bs []byte, n *int) (string, error) {
	v, m, err := ord.String.Unmarshal(bs[*n:])
	*n += m
	return v, err
}

func unmarshalUint64(bs []byte, n *int) (uint64, error) {
	v, m, err := varint.Uint64.Unmarshal(bs[*n:])
	*n += m
	return v, err
}

func unmarshalInt(bs []byte, n *int) (int, error) {
	v, m, err := varint.Int64.Unmarshal(bs[*n:])
	*n += m
	return int(v), err
}

func sizeVector(v []float32) int {
	size := varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return size
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += varint.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte, n *int) ([]float32, error) {
	length, err := unmarshalUint64(bs, n)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	if length > uint64(len(bs)-*n) {
		return nil, ErrSerializationFailed
	}
	v := make([]float32, length)
	for i := range v {
		bits, m, err := varint.Uint32.Unmarshal(bs[*n:])
		*n += m
		if err != nil {
			return nil, err
		}
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}

type stageStateSerializer struct{}

func (stageStateSerializer) Size(s core.StageState) int {
	return varint.Uint64.Size(uint64(s.Status)) +
		ord.String.Size(s.TaskID) +
		ord.String.Size(s.Error) +
		varint.Int64.Size(int64(s.Attempts)) +
		sizeTime(s.UpdatedAt)
}

func (stageStateSerializer) Marshal(s core.StageState, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(s.Status), bs)
	n += ord.String.Marshal(s.TaskID, bs[n:])
	n += ord.String.Marshal(s.Error, bs[n:])
	n += varint.Int64.Marshal(int64(s.Attempts), bs[n:])
	n += marshalTime(s.UpdatedAt, bs[n:])
	return n
}

func (stageStateSerializer) Unmarshal(bs []byte) (s core.StageState, n int, err error) {
	status, err := unmarshalUint64(bs, &n)
	if err != nil {
		return
	}
	s.Status = core.Status(status)
	if s.TaskID, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if s.Error, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if s.Attempts, err = unmarshalInt(bs, &n); err != nil {
		return
	}
	s.UpdatedAt, err = unmarshalTime(bs, &n)
	return
}

var stageStateMUS = stageStateSerializer{}

type recordSerializer struct{}

func (recordSerializer) Size(r core.Record) int {
	return IDMUS.Size(r.Id) +
		ord.String.Size(r.Title) +
		ord.String.Size(r.Text) +
		stageStateMUS.Size(r.Analysis) +
		stageStateMUS.Size(r.Embedding) +
		varint.Uint64.Size(r.Generation) +
		varint.Int64.Size(int64(r.ChunkCount)) +
		sizeTime(r.InsertedAt) +
		sizeTime(r.UpdatedAt)
}

func (recordSerializer) Marshal(r core.Record, bs []byte) int {
	n := IDMUS.Marshal(r.Id, bs)
	n += ord.String.Marshal(r.Title, bs[n:])
	n += ord.String.Marshal(r.Text, bs[n:])
	n += stageStateMUS.Marshal(r.Analysis, bs[n:])
	n += stageStateMUS.Marshal(r.Embedding, bs[n:])
	n += varint.Uint64.Marshal(r.Generation, bs[n:])
	n += varint.Int64.Marshal(int64(r.ChunkCount), bs[n:])
	n += marshalTime(r.InsertedAt, bs[n:])
	n += marshalTime(r.UpdatedAt, bs[n:])
	return n
}

func (recordSerializer) Unmarshal(bs []byte) (r core.Record, n int, err error) {
	var m int
	if r.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	n += m
	if r.Title, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if r.Text, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if r.Analysis, m, err = stageStateMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if r.Embedding, m, err = stageStateMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if r.Generation, err = unmarshalUint64(bs, &n); err != nil {
		return
	}
	if r.ChunkCount, err = unmarshalInt(bs, &n); err != nil {
		return
	}
	if r.InsertedAt, err = unmarshalTime(bs, &n); err != nil {
		return
	}
	r.UpdatedAt, err = unmarshalTime(bs, &n)
	return
}

type keyPointSerializer struct{}

func (keyPointSerializer) Size(k core.KeyPoint) int {
	return varint.Uint64.Size(uint64(k.Kind)) +
		ord.String.Size(k.Text) +
		ord.String.Size(k.Owner) +
		ord.String.Size(k.Deadline)
}

func (keyPointSerializer) Marshal(k core.KeyPoint, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(k.Kind), bs)
	n += ord.String.Marshal(k.Text, bs[n:])
	n += ord.String.Marshal(k.Owner, bs[n:])
	n += ord.String.Marshal(k.Deadline, bs[n:])
	return n
}

func (keyPointSerializer) Unmarshal(bs []byte) (k core.KeyPoint, n int, err error) {
	kind, err := unmarshalUint64(bs, &n)
	if err != nil {
		return
	}
	k.Kind = core.KeyPointKind(kind)
	if k.Text, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if k.Owner, err = unmarshalString(bs, &n); err != nil {
		return
	}
	k.Deadline, err = unmarshalString(bs, &n)
	return
}

var keyPointMUS = keyPointSerializer{}

type analysisSerializer struct{}

func (analysisSerializer) Size(a core.AnalysisResult) int {
	size := IDMUS.Size(a.RecordId) +
		ord.String.Size(a.TaskID) +
		ord.String.Size(a.Title) +
		ord.String.Size(a.Summary) +
		varint.Uint64.Size(uint64(len(a.KeyPoints))) +
		sizeTime(a.InsertedAt)
	for _, kp := range a.KeyPoints {
		size += keyPointMUS.Size(kp)
	}
	return size
}

func (analysisSerializer) Marshal(a core.AnalysisResult, bs []byte) int {
	n := IDMUS.Marshal(a.RecordId, bs)
	n += ord.String.Marshal(a.TaskID, bs[n:])
	n += ord.String.Marshal(a.Title, bs[n:])
	n += ord.String.Marshal(a.Summary, bs[n:])
	n += varint.Uint64.Marshal(uint64(len(a.KeyPoints)), bs[n:])
	for _, kp := range a.KeyPoints {
		n += keyPointMUS.Marshal(kp, bs[n:])
	}
	n += marshalTime(a.InsertedAt, bs[n:])
	return n
}

func (analysisSerializer) Unmarshal(bs []byte) (a core.AnalysisResult, n int, err error) {
	var m int
	if a.RecordId, m, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	n += m
	if a.TaskID, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if a.Title, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if a.Summary, err = unmarshalString(bs, &n); err != nil {
		return
	}
	count, err := unmarshalUint64(bs, &n)
	if err != nil {
		return
	}
	if count > uint64(len(bs)-n) {
		err = ErrSerializationFailed
		return
	}
	if count > 0 {
		a.KeyPoints = make([]core.KeyPoint, count)
	}
	for i := range a.KeyPoints {
		if a.KeyPoints[i], m, err = keyPointMUS.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += m
	}
	a.InsertedAt, err = unmarshalTime(bs, &n)
	return
}

type chunkSerializer struct{}

func (chunkSerializer) Size(c core.Chunk) int {
	return IDMUS.Size(c.Id) +
		IDMUS.Size(c.RecordId) +
		varint.Uint64.Size(c.Generation) +
		varint.Int64.Size(int64(c.Sequence)) +
		varint.Int64.Size(int64(c.Start)) +
		varint.Int64.Size(int64(c.End)) +
		ord.String.Size(c.Text) +
		sizeVector(c.Vector) +
		sizeTime(c.InsertedAt)
}

func (chunkSerializer) Marshal(c core.Chunk, bs []byte) int {
	n := IDMUS.Marshal(c.Id, bs)
	n += IDMUS.Marshal(c.RecordId, bs[n:])
	n += varint.Uint64.Marshal(c.Generation, bs[n:])
	n += varint.Int64.Marshal(int64(c.Sequence), bs[n:])
	n += varint.Int64.Marshal(int64(c.Start), bs[n:])
	n += varint.Int64.Marshal(int64(c.End), bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += marshalVector(c.Vector, bs[n:])
	n += marshalTime(c.InsertedAt, bs[n:])
	return n
}

func (chunkSerializer) Unmarshal(bs []byte) (c core.Chunk, n int, err error) {
	var m int
	if c.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	n += m
	if c.RecordId, m, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if c.Generation, err = unmarshalUint64(bs, &n); err != nil {
		return
	}
	if c.Sequence, err = unmarshalInt(bs, &n); err != nil {
		return
	}
	if c.Start, err = unmarshalInt(bs, &n); err != nil {
		return
	}
	if c.End, err = unmarshalInt(bs, &n); err != nil {
		return
	}
	if c.Text, err = unmarshalString(bs, &n); err != nil {
		return
	}
	if c.Vector, err = unmarshalVector(bs, &n); err != nil {
		return
	}
	c.InsertedAt, err = unmarshalTime(bs, &n)
	return
}
