package walio

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"

	"github.com/pathkv/pathkv/pkg/kverrors"
)

// Replay reads every well-formed frame from the WAL file at path, in order.
// A short read, CRC mismatch, or undecodable record is treated as a torn
// write left by a crash mid-append: replay stops at the first such frame
// and returns the records decoded before it, without an error, wherever in
// the file that frame lies. A missing or too-short file yields no records;
// a wrong magic header is reported as WAL corruption.
func Replay(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, kverrors.IO("opening WAL for replay", err)
	}
	defer f.Close()

	magic := make([]byte, len(Magic))
	n, err := io.ReadFull(f, magic)
	if err != nil || n < len(Magic) || string(magic) != Magic {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil
		}
		return nil, kverrors.WalCorruption(0, "bad WAL magic")
	}

	var records []Record
	offset := int64(len(Magic))

	for {
		record, frameLen, err := readFrame(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			if errors.Is(err, errTornFrame) {
				return records, nil
			}
			return nil, kverrors.WalCorruption(offset, err.Error())
		}
		records = append(records, record)
		offset += frameLen
	}
}

var errTornFrame = errors.New("torn trailing WAL frame")

// readFrame decodes one len|record|crc32 frame. It returns io.EOF at a clean
// end of file, and errTornFrame (not a hard corruption error) for a short
// length prefix or body, a CRC mismatch, or a record that does not decode.
func readFrame(f *os.File) (Record, int64, error) {
	var lenBuf [4]byte
	n, err := io.ReadFull(f, lenBuf[:])
	if n == 0 && err == io.EOF {
		return Record{}, 0, io.EOF
	}
	if err != nil {
		return Record{}, 0, errTornFrame
	}

	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	body := make([]byte, frameLen+4)
	if _, err := io.ReadFull(f, body); err != nil {
		return Record{}, 0, errTornFrame
	}

	record := body[:frameLen]
	storedCRC := binary.LittleEndian.Uint32(body[frameLen:])
	if crc32.ChecksumIEEE(record) != storedCRC {
		return Record{}, 0, errTornFrame
	}

	rec, err := decodeRecord(record)
	if err != nil {
		return Record{}, 0, errTornFrame
	}

	return rec, int64(4 + len(body)), nil
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("record shorter than fixed header")
	}
	seq := binary.LittleEndian.Uint64(b[0:8])
	kind := b[8]
	klen := binary.LittleEndian.Uint32(b[9:13])
	pos := 13

	if pos+int(klen) > len(b) {
		return Record{}, errors.New("key length exceeds record")
	}
	key := string(b[pos : pos+int(klen)])
	pos += int(klen)

	rec := Record{Kind: kind, Key: key, Seq: seq}

	if kind == RecordSet {
		if pos+4 > len(b) {
			return Record{}, errors.New("missing value length")
		}
		vlen := binary.LittleEndian.Uint32(b[pos : pos+4])
		pos += 4
		if pos+int(vlen) > len(b) {
			return Record{}, errors.New("value length exceeds record")
		}
		rec.Value = string(b[pos : pos+int(vlen)])
	}

	return rec, nil
}
