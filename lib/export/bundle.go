// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/attest/lib/audit"
	"github.com/bureau-foundation/attest/lib/codec"
)

// Bundle container layout:
//
//	magic             4 bytes  "ATB1"
//	compression tag   1 byte
//	uncompressed size 8 bytes  (uint64, little-endian)
//	payload           remaining bytes
//
// The payload is the canonical CBOR encoding of the sealed envelope,
// compressed per the tag. The uncompressed size is verified on read.
var bundleMagic = [4]byte{'A', 'T', 'B', '1'}

const bundleHeaderSize = 13

// maxBundleDocumentSize caps the declared uncompressed size so a
// corrupt or hostile header cannot trigger a huge allocation.
const maxBundleDocumentSize = 1 << 30

// CompressionTag identifies the compression algorithm used for a
// bundle payload. Tags are stored in the bundle header (1 byte).
// These values are protocol constants; changing them breaks bundle
// format compatibility.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload. Also the
	// fallback when the encoded document turns out incompressible.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast default
	// when decode speed matters more than ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd compression at level 3. Audit
	// documents are structured text-heavy CBOR, which zstd handles
	// well; this is the tag the builtin registry uses.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// WriteBundle writes the sealed envelope to w in bundle form. When
// the requested compression does not shrink the payload, the bundle
// is written uncompressed with CompressionNone.
func WriteBundle(w io.Writer, sealed *audit.Sealed, tag CompressionTag) error {
	payload, err := codec.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encoding sealed envelope: %w", err)
	}

	compressed, err := compressPayload(payload, tag)
	if err != nil {
		if isIncompressible(err) {
			compressed = payload
			tag = CompressionNone
		} else {
			return err
		}
	}

	var header [bundleHeaderSize]byte
	copy(header[:4], bundleMagic[:])
	header[4] = byte(tag)
	binary.LittleEndian.PutUint64(header[5:13], uint64(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing bundle header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("writing bundle payload: %w", err)
	}
	return nil
}

// ReadBundle reads a bundle from r and decodes the sealed envelope
// it carries. The payload is consumed to EOF.
func ReadBundle(r io.Reader) (*audit.Sealed, error) {
	var header [bundleHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("reading bundle header: %w", err)
	}
	if !bytes.Equal(header[:4], bundleMagic[:]) {
		return nil, fmt.Errorf("not an audit bundle: bad magic %q", header[:4])
	}

	tag := CompressionTag(header[4])
	switch tag {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}

	size := binary.LittleEndian.Uint64(header[5:13])
	if size > maxBundleDocumentSize {
		return nil, fmt.Errorf("bundle declares %d byte document, exceeding the %d byte limit",
			size, maxBundleDocumentSize)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading bundle payload: %w", err)
	}

	payload, err := decompressPayload(compressed, tag, int(size))
	if err != nil {
		return nil, err
	}

	var sealed audit.Sealed
	if err := codec.Unmarshal(payload, &sealed); err != nil {
		return nil, fmt.Errorf("decoding sealed envelope: %w", err)
	}
	return &sealed, nil
}

// BundleRenderer renders the binary bundle form of a sealed envelope.
type BundleRenderer struct {
	tag CompressionTag
}

// NewBundleRenderer returns a bundle renderer using the given
// compression.
func NewBundleRenderer(tag CompressionTag) *BundleRenderer {
	return &BundleRenderer{tag: tag}
}

func (r *BundleRenderer) Format() string { return "bundle" }

func (r *BundleRenderer) ContentType() string { return "application/octet-stream" }

func (r *BundleRenderer) Render(ctx context.Context, sealed *audit.Sealed) ([]byte, error) {
	var buffer bytes.Buffer
	if err := WriteBundle(&buffer, sealed, r.tag); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func compressPayload(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		return compressLZ4(data)

	case CompressionZstd:
		return compressZstd(data)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompressPayload decompresses a bundle payload and verifies the
// result is exactly uncompressedSize bytes.
func decompressPayload(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)

	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// LZ4 compression: block-mode LZ4.

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Output at least as large as the input counts
	// as incompressible too.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. zstd.Encoder and zstd.Decoder
// are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("export: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("export: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// errIncompressible is returned by compression functions when the
// compressed output is not smaller than the input. The caller falls
// back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

func isIncompressible(err error) bool {
	return errors.Is(err, errIncompressible)
}
