package walog

import (
	"bufio"
	"hash/crc32"
	"io"
	"os"

	"github.com/lumadb/luma/pkg/lumaerr"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Recover replays every segment in order, invoking fn for each valid entry
// in sequence order. A torn record at the very end of the very last segment
// (the writer crashed mid-append) is silently discarded — recovery stops
// there without error. A torn record found anywhere else (a complete frame
// whose checksum fails, or a short read followed by more bytes in a later
// segment) is corruption and returns a fatal *lumaerr.Error of kind
// Corruption.
func Recover(dir string, fn func(Entry) error) error {
	segs, err := listSegments(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return lumaerr.Wrap("walog.Recover", lumaerr.IoFailed, err)
	}

	for i, idx := range segs {
		isLastSegment := i == len(segs)-1
		if err := recoverSegment(segmentPath(dir, idx), isLastSegment, fn); err != nil {
			return err
		}
	}
	return nil
}

func recoverSegment(path string, isLastSegment bool, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return lumaerr.Wrap("walog.recoverSegment", lumaerr.IoFailed, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(r, lenBuf)
		if err != nil {
			if n == 0 && err == io.EOF {
				return nil // clean end of segment
			}
			if isLastSegment {
				return nil // torn tail: partial length prefix, never fully written
			}
			return lumaerr.New("walog.recoverSegment", lumaerr.Corruption)
		}

		bodyLen := getUint32(lenBuf)
		if bodyLen < 13 {
			return lumaerr.New("walog.recoverSegment", lumaerr.Corruption)
		}
		body := make([]byte, bodyLen)
		if _, err = io.ReadFull(r, body); err != nil {
			if isLastSegment {
				return nil // torn tail: frame announced but payload never completed
			}
			return lumaerr.New("walog.recoverSegment", lumaerr.Corruption)
		}

		storedCRC := getUint32(body[0:4])
		payload := body[4:]
		gotCRC := crc32.Checksum(payload, crcTable)
		if storedCRC != gotCRC {
			if isLastSegment {
				// Peek: if nothing follows, this is a torn tail (bit flip
				// during an interrupted final write); otherwise it is
				// corruption in the middle of otherwise-valid data.
				if _, peekErr := r.Peek(1); peekErr == io.EOF {
					return nil
				}
			}
			return lumaerr.New("walog.recoverSegment", lumaerr.Corruption)
		}

		seq := getUint64(payload[0:8])
		kind := OpKind(payload[8])
		data := payload[9:]
		entryData := make([]byte, len(data))
		copy(entryData, data)

		if err := fn(Entry{Sequence: seq, Kind: kind, Payload: entryData}); err != nil {
			return err
		}
	}
}

func recoverMaxSequence(dir string) (uint64, error) {
	var max uint64
	var any bool
	err := Recover(dir, func(e Entry) error {
		if !any || e.Sequence > max {
			max = e.Sequence
			any = true
		}
		return nil
	})
	return max, err
}
