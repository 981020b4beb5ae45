// Package filestore keeps each sensor's samples in an append-only segment file
// of CBOR records. Payloads are optionally compressed and carry a blake3
// checksum that is verified when they are read back.
package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

// Name is the capability name of this backend.
const Name = "file"

const segmentExt = ".seg"

// MaxPayloadSize bounds a single stored payload.
const MaxPayloadSize = 64 << 20

var (
	// ErrChecksum reports a record whose payload does not match its checksum.
	ErrChecksum = errors.New("record checksum mismatch")
	// ErrCorrupt reports a record whose header fields cannot be valid.
	ErrCorrupt = errors.New("corrupt record")
)

// record is one sample as written to a segment.
type record struct {
	Timestamp   int64       `cbor:"1,keyasint"`
	Compression Compression `cbor:"2,keyasint"`
	Size        int         `cbor:"3,keyasint"`
	Sum         []byte      `cbor:"4,keyasint"`
	Data        []byte      `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("filestore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("filestore: CBOR decoder initialization failed: " + err.Error())
	}
}

// Storage is the file backend. Params: path (directory), compression
// (none, lz4 or zstd).
type Storage struct {
	mu          sync.Mutex
	dir         string
	compression Compression
}

// New returns a closed backend.
func New() *Storage {
	return &Storage{}
}

func (s *Storage) Name() string { return Name }

func (s *Storage) Open(_ context.Context, params map[string]string) error {
	dir, err := storage.Param(params, "path")
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	c, err := ParseCompression(params["compression"])
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return storage.Wrap("open", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = dir
	s.compression = c
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = ""
	return nil
}

// segment returns the segment path for sensor. The caller holds s.mu.
func (s *Storage) segment(sensor string) (string, error) {
	if s.dir == "" {
		return "", storage.ErrNotOpen
	}
	if err := storage.ValidateEntity(sensor); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, sensor+segmentExt), nil
}

func (s *Storage) PrepareEntity(_ context.Context, sensor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.segment(sensor)
	if err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return storage.Wrap("prepare", sensor, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	return storage.Wrap("prepare", sensor, f.Close())
}

func (s *Storage) Put(_ context.Context, sensor string, ts int64, payload []byte) error {
	sum := blake3.Sum256(payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.segment(sensor)
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}
	if len(payload) > MaxPayloadSize {
		return storage.Wrap("put", sensor, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), MaxPayloadSize))
	}
	data, used, err := compress(payload, s.compression)
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}
	b, err := encMode.Marshal(record{
		Timestamp:   ts,
		Compression: used,
		Size:        len(payload),
		Sum:         sum[:],
		Data:        data,
	})
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return storage.Wrap("put", sensor, err)
	}
	return storage.Wrap("put", sensor, f.Close())
}

// Get scans the whole segment. Later records win over earlier ones with the
// same timestamp.
func (s *Storage) Get(_ context.Context, sensor string, from, to int64) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.segment(sensor)
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	defer f.Close()

	latest := make(map[int64]record)
	dec := decMode.NewDecoder(bufio.NewReader(f))
	for {
		var r record
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, storage.Wrap("get", sensor, fmt.Errorf("decode segment: %w", err))
		}
		if models.InRange(r.Timestamp, from, to) {
			latest[r.Timestamp] = r
		}
	}

	records := make([]models.Record, 0, len(latest))
	for _, r := range latest {
		payload, err := decompress(r.Data, r.Compression, r.Size)
		if err != nil {
			return nil, storage.Wrap("get", sensor, err)
		}
		sum := blake3.Sum256(payload)
		if !bytes.Equal(sum[:], r.Sum) {
			return nil, storage.Wrap("get", sensor, fmt.Errorf("%w at timestamp %d", ErrChecksum, r.Timestamp))
		}
		records = append(records, models.Record{Timestamp: r.Timestamp, Payload: payload})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}
