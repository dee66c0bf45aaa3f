package entry

import "time"

type RecordType uint8

const (
	RecordPlace RecordType = iota + 1
	RecordCancel
	RecordModify
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "place"
	case RecordCancel:
		return "cancel"
	case RecordModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Record is one journalled command. Time is the command's logical time;
// replay feeds it back to the clock so the book sees the same timestamps.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, at time.Time, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: at.UnixNano(),
		Data: data,
	}
}

func (r *Record) At() time.Time {
	return time.Unix(0, r.Time).UTC()
}
