package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/sirupsen/logrus"

	"seqsync/internal/model"
	"seqsync/internal/storage"
)

const (
	payloadLenBytes          = 4
	checksumBytes            = 4
	traceSeqBytes            = 8
	traceSessionBytes        = 8
	kindBytes                = 1
	lenFieldSize             = 4
	defaultTraceBufferBytes  = 4 * 1024 * 1024
	minimalTraceBufferBytes  = 128
	defaultMaxQueuedCommands = 1024
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// TraceRecord is one command as read back from a trace file. Sequence is the
// position of the record in the trace, starting at 1. Session counts
// controller starts over the same file; every session began from NewState.
type TraceRecord struct {
	Sequence uint64
	Session  uint64
	Command  model.Command
}

// SplitSessions groups records by session, keeping file order.
func SplitSessions(records []TraceRecord) [][]TraceRecord {
	var sessions [][]TraceRecord
	for i, rec := range records {
		if i == 0 || rec.Session != records[i-1].Session {
			sessions = append(sessions, nil)
		}
		sessions[len(sessions)-1] = append(sessions[len(sessions)-1], rec)
	}
	return sessions
}

// ReplaySession rebuilds the state one session ended with.
func ReplaySession(session []TraceRecord) State {
	cmds := make([]model.Command, 0, len(session))
	for _, rec := range session {
		cmds = append(cmds, rec.Command)
	}
	return Replay(NewState(), cmds)
}

// traceRecorder buffers encoded commands and writes them to the active trace
// file on flush. Only the controller goroutine touches it.
type traceRecorder struct {
	file           *os.File
	nextSequence   uint64
	session        uint64
	buffer         bytes.Buffer
	maxBufferBytes int
}

func openTraceRecorder(path string, bufferBytes int, log *logrus.Entry) (*traceRecorder, error) {
	records, intact, err := readTrace(path, log)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := storage.OpenAppend(path)
	if err != nil {
		return nil, err
	}
	// appends after a torn record would be unreachable
	size, err := storage.Size(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if size > intact {
		log.WithFields(logrus.Fields{"trace": path, "from": size, "to": intact}).Warn("truncating damaged trace tail")
		if err := storage.Truncate(f, intact); err != nil {
			f.Close()
			return nil, err
		}
	}

	if bufferBytes <= 0 {
		bufferBytes = defaultTraceBufferBytes
	}
	if bufferBytes < minimalTraceBufferBytes {
		bufferBytes = minimalTraceBufferBytes
	}

	next, session := uint64(1), uint64(1)
	if n := len(records); n > 0 {
		next = records[n-1].Sequence + 1
		session = records[n-1].Session + 1
	}
	return &traceRecorder{file: f, nextSequence: next, session: session, maxBufferBytes: bufferBytes}, nil
}

// record buffers cmd. The sequence only advances once the record is buffered.
func (r *traceRecorder) record(cmd model.Command) error {
	data := encodeTraceRecord(r.nextSequence, r.session, cmd)
	if len(data) > r.maxBufferBytes {
		return fmt.Errorf("trace record (%d bytes) exceeds buffer size (%d bytes)", len(data), r.maxBufferBytes)
	}
	if r.buffer.Len()+len(data) > r.maxBufferBytes {
		if err := r.flush(); err != nil {
			return err
		}
	}
	if _, err := r.buffer.Write(data); err != nil {
		return err
	}
	r.nextSequence++
	return nil
}

func (r *traceRecorder) flush() error {
	if r.file == nil {
		return errors.New("trace file closed")
	}
	if r.buffer.Len() == 0 {
		return nil
	}
	if err := storage.Write(r.file, r.buffer.Bytes()); err != nil {
		return err
	}
	err := r.file.Sync()
	if err == nil {
		r.buffer.Reset()
	}
	return err
}

func (r *traceRecorder) close() error {
	flushErr := r.flush()
	closeErr := r.file.Close()
	r.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// LoadTrace reads every intact record from the trace at path. Reading stops
// at the first truncated or corrupt record; what precedes it is returned.
func LoadTrace(path string, log *logrus.Entry) ([]TraceRecord, error) {
	records, _, err := readTrace(path, log)
	return records, err
}

// readTrace also returns the offset where the intact records end.
func readTrace(path string, log *logrus.Entry) ([]TraceRecord, int64, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("trace", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	fileSize, err := storage.Size(f)
	if err != nil {
		return nil, 0, err
	}

	var (
		records []TraceRecord
		offset  int64
		intact  int64
	)
	for offset < fileSize {
		header, err := storage.ReadAt(f, offset, payloadLenBytes+checksumBytes)
		if err != nil {
			return records, intact, err
		}
		if len(header) < payloadLenBytes+checksumBytes {
			log.WithField("offset", offset).Warn("truncated trace record header")
			break
		}
		payloadLen := binary.BigEndian.Uint32(header[:payloadLenBytes])
		expected := binary.BigEndian.Uint32(header[payloadLenBytes:])
		offset += payloadLenBytes + checksumBytes

		payload, err := storage.ReadAt(f, offset, int(payloadLen))
		if err != nil {
			return records, intact, err
		}
		if len(payload) < int(payloadLen) {
			log.WithFields(logrus.Fields{"offset": offset, "want": payloadLen, "got": len(payload)}).
				Warn("truncated trace record payload")
			break
		}
		offset += int64(payloadLen)

		if actual := crc32.Checksum(payload, castagnoli); actual != expected {
			log.WithFields(logrus.Fields{"record": len(records), "want": expected, "got": actual}).
				Warn("trace checksum mismatch, stopping at corruption boundary")
			break
		}
		rec, err := decodeTracePayload(payload)
		if err != nil {
			log.WithError(err).WithField("record", len(records)).Warn("undecodable trace record, stopping")
			break
		}
		records = append(records, rec)
		intact = offset
	}

	log.WithFields(logrus.Fields{"records": len(records), "bytes": fileSize, "intact": intact}).Debug("loaded trace")
	return records, intact, nil
}

/*
encodeTraceRecord frames one command for the trace file:

| PayloadLength | CRC32C  | Sequence | Session | Kind   | NsLen   | Ns      | KeyLen  | Key     | ValueLen | Value   |
|---------------|---------|----------|---------|--------|---------|---------|---------|---------|----------|---------|
| 4 bytes       | 4 bytes | 8 bytes  | 8 bytes | 1 byte | 4 bytes | N bytes | 4 bytes | K bytes | 4 bytes  | V bytes |

The checksum covers the payload, i.e. everything from Sequence to Value.
*/
func encodeTraceRecord(sequence, session uint64, cmd model.Command) []byte {
	payload := make([]byte, 0, traceSeqBytes+traceSessionBytes+kindBytes+3*lenFieldSize+len(cmd.Namespace)+len(cmd.Key)+len(cmd.Value))
	payload = binary.BigEndian.AppendUint64(payload, sequence)
	payload = binary.BigEndian.AppendUint64(payload, session)
	payload = append(payload, byte(cmd.Kind))
	for _, field := range []string{cmd.Namespace, cmd.Key, cmd.Value} {
		payload = binary.BigEndian.AppendUint32(payload, uint32(len(field)))
		payload = append(payload, field...)
	}

	record := make([]byte, 0, payloadLenBytes+checksumBytes+len(payload))
	record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	record = binary.BigEndian.AppendUint32(record, crc32.Checksum(payload, castagnoli))
	return append(record, payload...)
}

func decodeTracePayload(payload []byte) (TraceRecord, error) {
	minSize := traceSeqBytes + traceSessionBytes + kindBytes + 3*lenFieldSize
	if len(payload) < minSize {
		return TraceRecord{}, fmt.Errorf("payload too short: %d bytes (minimum %d)", len(payload), minSize)
	}
	pos := 0
	sequence := binary.BigEndian.Uint64(payload[pos:])
	pos += traceSeqBytes
	session := binary.BigEndian.Uint64(payload[pos:])
	pos += traceSessionBytes

	kind := model.CommandKind(payload[pos])
	if !kind.Valid() {
		return TraceRecord{}, fmt.Errorf("invalid command kind: %d", kind)
	}
	pos += kindBytes

	var fields [3]string
	for i := range fields {
		if pos+lenFieldSize > len(payload) {
			return TraceRecord{}, fmt.Errorf("length field %d exceeds payload bounds", i)
		}
		n := int(binary.BigEndian.Uint32(payload[pos:]))
		pos += lenFieldSize
		if pos+n > len(payload) {
			return TraceRecord{}, fmt.Errorf("field %d length (%d) exceeds payload bounds", i, n)
		}
		fields[i] = string(payload[pos : pos+n])
		pos += n
	}

	return TraceRecord{
		Sequence: sequence,
		Session:  session,
		Command:  model.Command{Kind: kind, Namespace: fields[0], Key: fields[1], Value: fields[2]},
	}, nil
}
