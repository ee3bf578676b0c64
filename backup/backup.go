// Package backup streams the full contents of a key-column-value store to
// and from archive files, optionally compressed, and moves archives
// through blobstore targets.
//
// The archive is a flat stream of key frames:
//
//	header:  magic "GLBK", version, compression
//	frame:   uvarint(len(key)) key uvarint(n) n * (uvarint(len(col)) col uvarint(len(val)) val)
//	end:     uvarint(0)
//
// Everything after the header runs through the configured compressor.
// Empty keys cannot occur in stores (every key owns at least one entry),
// so a zero key length doubles as the end marker.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/golap/blobstore"
	"github.com/hupe1980/golap/kcv"
)

var magic = [4]byte{'G', 'L', 'B', 'K'}

const formatVersion = 1

// Compression selects the archive's compression codec.
type Compression byte

const (
	// CompressionNone stores frames uncompressed.
	CompressionNone Compression = iota

	// CompressionS2 uses S2 (Snappy-compatible), fast with moderate
	// ratios. This is the default.
	CompressionS2

	// CompressionLZ4 uses LZ4 framing.
	CompressionLZ4
)

type options struct {
	compression Compression
}

// Option configures Write.
type Option func(*options)

// WithCompression selects the archive compression codec.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// Write streams every key of store, with all of its entries, into w.
func Write(ctx context.Context, store kcv.Store, w io.Writer, opts ...Option) error {
	o := options{compression: CompressionS2}
	for _, opt := range opts {
		opt(&o)
	}

	header := []byte{magic[0], magic[1], magic[2], magic[3], formatVersion, byte(o.compression)}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("backup: write header: %w", err)
	}

	var frames io.Writer
	var finish func() error
	switch o.compression {
	case CompressionNone:
		frames = w
		finish = func() error { return nil }
	case CompressionS2:
		zw := s2.NewWriter(w)
		frames = zw
		finish = zw.Close
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		frames = zw
		finish = zw.Close
	default:
		return fmt.Errorf("backup: unknown compression %d", o.compression)
	}

	bw := bufio.NewWriter(frames)

	full := kcv.FullRangeQuery()
	for key, err := range store.Keys(ctx) {
		if err != nil {
			return fmt.Errorf("backup: list keys: %w", err)
		}

		entries, err := store.GetSlice(ctx, key, full)
		if err != nil {
			return fmt.Errorf("backup: read key: %w", err)
		}

		if err := writeFrame(bw, key, entries); err != nil {
			return err
		}
	}

	if err := writeUvarint(bw, 0); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("backup: flush: %w", err)
	}
	if err := finish(); err != nil {
		return fmt.Errorf("backup: finish compression: %w", err)
	}

	return nil
}

// Read restores an archive into store, key frame by key frame. Existing
// entries with equal columns are overwritten.
func Read(ctx context.Context, store kcv.Store, r io.Reader) error {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("backup: read header: %w", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return fmt.Errorf("backup: bad magic %x", header[:4])
	}
	if header[4] != formatVersion {
		return fmt.Errorf("backup: unsupported format version %d", header[4])
	}

	var frames io.Reader
	switch Compression(header[5]) {
	case CompressionNone:
		frames = r
	case CompressionS2:
		frames = s2.NewReader(r)
	case CompressionLZ4:
		frames = lz4.NewReader(r)
	default:
		return fmt.Errorf("backup: unknown compression %d", header[5])
	}

	br := bufio.NewReader(frames)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, entries, end, err := readFrame(br)
		if err != nil {
			return err
		}
		if end {
			return nil
		}

		if err := store.Mutate(ctx, key, entries, nil); err != nil {
			return fmt.Errorf("backup: restore key: %w", err)
		}
	}
}

// Upload writes an archive of store into bs under name.
func Upload(ctx context.Context, store kcv.Store, bs blobstore.Store, name string, opts ...Option) error {
	var buf bytes.Buffer
	if err := Write(ctx, store, &buf, opts...); err != nil {
		return err
	}
	return bs.Put(ctx, name, &buf)
}

// Download restores the archive stored in bs under name into store.
func Download(ctx context.Context, store kcv.Store, bs blobstore.Store, name string) error {
	rc, err := bs.Get(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	return Read(ctx, store, rc)
}

func writeUvarint(w *bufio.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	if _, err := w.Write(buf[:n]); err != nil {
		return fmt.Errorf("backup: write frame: %w", err)
	}
	return nil
}

func writeBuffer(w *bufio.Writer, b kcv.StaticBuffer) error {
	if err := writeUvarint(w, uint64(b.Len())); err != nil {
		return err
	}
	if _, err := w.WriteString(string(b)); err != nil {
		return fmt.Errorf("backup: write frame: %w", err)
	}
	return nil
}

func writeFrame(w *bufio.Writer, key kcv.StaticBuffer, entries kcv.EntryList) error {
	if key.Len() == 0 {
		return fmt.Errorf("backup: empty key")
	}
	if err := writeBuffer(w, key); err != nil {
		return err
	}
	if err := writeUvarint(w, uint64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeBuffer(w, e.Column); err != nil {
			return err
		}
		if err := writeBuffer(w, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func readBuffer(r *bufio.Reader, length uint64) (kcv.StaticBuffer, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("backup: read frame: %w", err)
	}
	return kcv.NewStaticBuffer(b), nil
}

func readFrame(r *bufio.Reader) (key kcv.StaticBuffer, entries kcv.EntryList, end bool, err error) {
	keyLen, err := binary.ReadUvarint(r)
	if err != nil {
		return "", nil, false, fmt.Errorf("backup: read frame: %w", err)
	}
	if keyLen == 0 {
		return "", nil, true, nil
	}

	if key, err = readBuffer(r, keyLen); err != nil {
		return "", nil, false, err
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return "", nil, false, fmt.Errorf("backup: read frame: %w", err)
	}

	entries = make(kcv.EntryList, 0, count)
	for i := uint64(0); i < count; i++ {
		colLen, err := binary.ReadUvarint(r)
		if err != nil {
			return "", nil, false, fmt.Errorf("backup: read frame: %w", err)
		}
		col, err := readBuffer(r, colLen)
		if err != nil {
			return "", nil, false, err
		}
		valLen, err := binary.ReadUvarint(r)
		if err != nil {
			return "", nil, false, fmt.Errorf("backup: read frame: %w", err)
		}
		val, err := readBuffer(r, valLen)
		if err != nil {
			return "", nil, false, err
		}
		entries = append(entries, kcv.Entry{Column: col, Value: val})
	}

	return key, entries, false, nil
}
