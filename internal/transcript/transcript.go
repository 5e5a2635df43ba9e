// Package transcript records received messages as length-delimited protobuf
// structs so a session can be replayed later.
package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// Record is one received message.
type Record struct {
	Seq        int64
	Session    string
	Payload    string
	ReceivedAt time.Time
}

func (r Record) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"seq":        r.Seq,
		"session":    r.Session,
		"payload":    r.Payload,
		"receivedAt": r.ReceivedAt.UTC().Format(time.RFC3339Nano),
	})
}

func fromStruct(s *structpb.Struct) (Record, error) {
	fields := s.GetFields()

	at, err := time.Parse(time.RFC3339Nano, fields["receivedAt"].GetStringValue())
	if err != nil {
		return Record{}, fmt.Errorf("invalid receivedAt: %w", err)
	}

	return Record{
		Seq:        int64(fields["seq"].GetNumberValue()),
		Session:    fields["session"].GetStringValue(),
		Payload:    fields["payload"].GetStringValue(),
		ReceivedAt: at,
	}, nil
}

// Writer appends records to an underlying stream.
type Writer struct {
	w   io.Writer
	seq int64
	now func() time.Time
}

// NewWriter returns a Writer numbering records from 1.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Write appends payload received on session.
func (w *Writer) Write(session, payload string) error {
	w.seq++

	msg, err := Record{
		Seq:        w.seq,
		Session:    session,
		Payload:    payload,
		ReceivedAt: w.now(),
	}.toStruct()
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if _, err := protodelim.MarshalTo(w.w, msg); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Reader reads records written by Writer.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var msg structpb.Struct
	if err := protodelim.UnmarshalFrom(r.r, &msg); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read record: %w", err)
	}
	return fromStruct(&msg)
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
