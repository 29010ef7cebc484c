// Package store persists States as versioned binary blobs.
//
// A blob is the four-byte magic "BWST", a big-endian uint16 schema version
// and a zstd-compressed CBOR document. The document holds the revision
// declarations in insertion order, the wirings (revisions by ordinal,
// requirements and capabilities by index), disabled infos, the platform
// context, the State's id and its timestamp.
//
// Reading never fails on bad data: an unknown schema version, a wrong magic
// or a corrupt payload yields a nil State and a nil error, meaning "nothing
// usable was cached". Only I/O failures are returned.
//
// Platform values that cannot be persisted are dropped on write with a
// warning; the restored State lacks them.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/matzehuels/bundlewire/pkg/errors"
	"github.com/matzehuels/bundlewire/pkg/observability"
	"github.com/matzehuels/bundlewire/pkg/state"
)

// Magic starts every blob.
const Magic = "BWST"

// SchemaVersion is the document layout written by this package. Blobs with
// another version read as absent.
const SchemaVersion uint16 = 1

const headerSize = len(Magic) + 2

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zenc *zstd.Encoder
	zdec *zstd.Decoder
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 24, MaxMapPairs: 1 << 24}).DecMode(); err != nil {
		panic(err)
	}
	if zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(err)
	}
	if zdec, err = zstd.NewReader(nil); err != nil {
		panic(err)
	}
}

// Encode serializes st into a blob.
func Encode(st *state.State) ([]byte, error) {
	doc, dropped, err := encodeState(st)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "encode state")
	}
	if len(dropped) > 0 {
		st.Logger().Warn("platform values not persisted", "keys", dropped)
	}
	payload, err := encMode.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "marshal state")
	}

	out := make([]byte, headerSize, headerSize+len(payload)/2)
	copy(out, Magic)
	binary.BigEndian.PutUint16(out[len(Magic):], SchemaVersion)
	return zenc.EncodeAll(payload, out), nil
}

// Decode rebuilds a State from a blob. Unusable blobs return nil. opts
// supplies the logger and resolver settings; the platform comes from the
// blob.
func Decode(data []byte, opts state.Options) *state.State {
	st, _ := decode(data, opts)
	return st
}

// decode also returns why a blob was unusable, for logging.
func decode(data []byte, opts state.Options) (*state.State, error) {
	if len(data) < headerSize || string(data[:len(Magic)]) != Magic {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "missing %s header", Magic)
	}
	if v := binary.BigEndian.Uint16(data[len(Magic):headerSize]); v != SchemaVersion {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "schema version %d, want %d", v, SchemaVersion)
	}
	payload, err := zdec.DecodeAll(data[headerSize:], nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decompress state")
	}
	var doc document
	if err := decMode.Unmarshal(payload, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "unmarshal state")
	}
	st, err := decodeState(&doc, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "rebuild state")
	}
	return st, nil
}

// Write encodes st to w.
func Write(ctx context.Context, st *state.State, w io.Writer) error {
	start := time.Now()
	data, err := Encode(st)
	if err == nil {
		if _, werr := w.Write(data); werr != nil {
			err = errors.Wrap(errors.ErrCodeIO, werr, "write state")
		}
	}
	observability.Store().OnWrite(ctx, len(data), time.Since(start), err)
	return err
}

// Read decodes a State from r. A nil State with a nil error means r did not
// hold a usable blob.
func Read(ctx context.Context, r io.Reader, opts state.Options) (*state.State, error) {
	start := time.Now()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		err = errors.Wrap(errors.ErrCodeIO, err, "read state")
		observability.Store().OnRead(ctx, buf.Len(), false, time.Since(start), err)
		return nil, err
	}
	return readBytes(ctx, buf.Bytes(), opts, start), nil
}

func readBytes(ctx context.Context, data []byte, opts state.Options, start time.Time) *state.State {
	opts = opts.WithDefaults()
	st, reason := decode(data, opts)
	if reason != nil {
		opts.Logger.Debug("cached state unusable", "reason", reason)
	}
	observability.Store().OnRead(ctx, len(data), st == nil, time.Since(start), nil)
	return st
}
