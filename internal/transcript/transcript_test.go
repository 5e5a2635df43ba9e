package transcript

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	w := NewWriter(&buf)
	w.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	for _, payload := range []string{"hello", "", "日本語"} {
		if err := w.Write("s-1", payload); err != nil {
			t.Fatalf("Write(%q) error = %v", payload, err)
		}
	}

	got, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	want := []Record{
		{Seq: 1, Session: "s-1", Payload: "hello", ReceivedAt: base.Add(time.Millisecond)},
		{Seq: 2, Session: "s-1", Payload: "", ReceivedAt: base.Add(2 * time.Millisecond)},
		{Seq: 3, Session: "s-1", Payload: "日本語", ReceivedAt: base.Add(3 * time.Millisecond)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReader_Empty(t *testing.T) {
	got, err := NewReader(strings.NewReader("")).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write("s", "payload"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])
	if _, err := NewReader(truncated).Next(); err == nil {
		t.Error("expected error for truncated record")
	}
}
