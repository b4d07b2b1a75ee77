package pubsub

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"freightflow/internal/apperrors"
)

// captureMaxLine bounds one capture line; load events carry full load
// records and stay well under this.
const captureMaxLine = 1 << 20

// Record is one captured bus message: a topic line from a live session or
// a generated scenario, replayable in file order.
type Record struct {
	Topic string          `json:"topic"`
	Key   string          `json:"key,omitempty"`
	At    time.Time       `json:"at"`
	Value json.RawMessage `json:"value"`
}

// WriteRecord appends one record to a JSONL capture stream.
func WriteRecord(w io.Writer, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Internal("CAPTURE_ENCODE", "failed to encode capture record", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return apperrors.Internal("CAPTURE_WRITE", "failed to write capture record", err)
	}
	return nil
}

// ReadCapture streams a JSONL capture, invoking fn per record in file
// order. Blank lines are skipped; the first malformed line aborts.
func ReadCapture(r io.Reader, fn func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), captureMaxLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return apperrors.Validation("CAPTURE_DECODE", "malformed capture record", "line", line)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Internal("CAPTURE_READ", "failed to read capture stream", err)
	}
	return nil
}
