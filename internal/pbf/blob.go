package pbf

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/qedus/osmpbf/OSMPBF"
	"google.golang.org/protobuf/proto"

	"github.com/beetlebugorg/osmgeo/internal/source"
)

// Limits from the OSM PBF format description.
const (
	maxBlobHeaderSize = 64 * 1024
	maxBlobSize       = 32 * 1024 * 1024
)

// Blob types.
const (
	typeHeader = "OSMHeader"
	typeData   = "OSMData"
)

// scanBlocks walks the length-prefixed framing of the whole input and
// returns one BlockInfo per block. Only the small BlobHeader of each block
// is read; payloads are left for the decode tasks.
func scanBlocks(ctx context.Context, src source.Source) ([]BlockInfo, error) {
	var (
		blocks []BlockInfo
		off    int64
		size   = src.Size()
		prefix [4]byte
	)

	for off < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := len(blocks)
		if size-off < int64(len(prefix)) {
			return nil, fmt.Errorf("%w: block %d: %d trailing bytes", ErrTruncated, id, size-off)
		}
		if _, err := src.ReadAt(ctx, prefix[:], off); err != nil {
			return nil, fmt.Errorf("read block %d length: %w", id, err)
		}
		headerLen := int64(binary.BigEndian.Uint32(prefix[:]))
		if headerLen == 0 || headerLen > maxBlobHeaderSize {
			return nil, &CorruptBlockError{BlockID: id, Offset: off, Reason: fmt.Sprintf("blob header size %d", headerLen)}
		}
		if off+4+headerLen > size {
			return nil, fmt.Errorf("%w: block %d header", ErrTruncated, id)
		}

		buf := make([]byte, headerLen)
		if _, err := src.ReadAt(ctx, buf, off+4); err != nil {
			return nil, fmt.Errorf("read block %d header: %w", id, err)
		}
		hdr := &OSMPBF.BlobHeader{}
		if err := proto.Unmarshal(buf, hdr); err != nil {
			return nil, &CorruptBlockError{BlockID: id, Offset: off, Reason: "blob header", Err: err}
		}
		dataLen := int64(hdr.GetDatasize())
		if dataLen < 0 || dataLen > maxBlobSize {
			return nil, &CorruptBlockError{BlockID: id, Offset: off, Reason: fmt.Sprintf("blob size %d", dataLen)}
		}
		total := 4 + headerLen + dataLen
		if off+total > size {
			return nil, fmt.Errorf("%w: block %d declares %d bytes, %d remain", ErrTruncated, id, total, size-off)
		}

		blocks = append(blocks, BlockInfo{ID: id, Offset: off, Size: total})
		off += total
	}

	if len(blocks) == 0 {
		return nil, ErrEmptyFile
	}
	return blocks, nil
}

// readPayload reads one whole block and returns its blob type and inflated payload.
func readPayload(ctx context.Context, src source.Source, bi BlockInfo) (string, []byte, error) {
	if bi.Size < 4 || bi.Size > 4+maxBlobHeaderSize+maxBlobSize {
		return "", nil, &CorruptBlockError{BlockID: bi.ID, Offset: bi.Offset, Reason: fmt.Sprintf("block size %d", bi.Size)}
	}
	raw := make([]byte, bi.Size)
	if _, err := src.ReadAt(ctx, raw, bi.Offset); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", nil, fmt.Errorf("%w: block %d", ErrTruncated, bi.ID)
		}
		return "", nil, fmt.Errorf("read block %d: %w", bi.ID, err)
	}
	return decodeFrame(bi, raw)
}

func decodeFrame(bi BlockInfo, raw []byte) (string, []byte, error) {
	corrupt := func(reason string, err error) error {
		return &CorruptBlockError{BlockID: bi.ID, Offset: bi.Offset, Reason: reason, Err: err}
	}

	headerLen := int64(binary.BigEndian.Uint32(raw[:4]))
	if 4+headerLen > int64(len(raw)) {
		return "", nil, corrupt("blob header exceeds block", nil)
	}
	hdr := &OSMPBF.BlobHeader{}
	if err := proto.Unmarshal(raw[4:4+headerLen], hdr); err != nil {
		return "", nil, corrupt("blob header", err)
	}
	body := raw[4+headerLen:]
	if int64(hdr.GetDatasize()) != int64(len(body)) {
		return "", nil, corrupt(fmt.Sprintf("declared blob size %d, block holds %d", hdr.GetDatasize(), len(body)), nil)
	}

	blob := &OSMPBF.Blob{}
	if err := proto.Unmarshal(body, blob); err != nil {
		return "", nil, corrupt("blob", err)
	}
	data, err := blobData(blob)
	if err != nil {
		return "", nil, corrupt("blob payload", err)
	}
	return hdr.GetType(), data, nil
}

// blobData returns the uncompressed payload of a blob.
func blobData(blob *OSMPBF.Blob) ([]byte, error) {
	switch data := blob.Data.(type) {
	case *OSMPBF.Blob_Raw:
		return data.Raw, nil

	case *OSMPBF.Blob_ZlibData:
		rawSize := int(blob.GetRawSize())
		if rawSize < 0 || rawSize > maxBlobSize {
			return nil, fmt.Errorf("raw size %d out of range", rawSize)
		}
		r, err := zlib.NewReader(bytes.NewReader(data.ZlibData))
		if err != nil {
			return nil, err
		}
		defer r.Close()

		buf := make([]byte, rawSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		// The declared raw size must account for the whole stream.
		var extra [1]byte
		n, err := r.Read(extra[:])
		if n > 0 {
			return nil, fmt.Errorf("inflated data exceeds raw size %d", rawSize)
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		return buf, nil

	default:
		return nil, errors.New("unsupported blob compression")
	}
}

// ReadBlock reads and decodes one data block. Blocks of any type other than
// OSMData yield a nil block and no error.
func ReadBlock(ctx context.Context, src source.Source, bi BlockInfo) (*RawBlock, error) {
	typ, data, err := readPayload(ctx, src, bi)
	if err != nil {
		return nil, err
	}
	if typ != typeData {
		return nil, nil
	}
	blk, err := decodePrimitiveBlock(bi.ID, data)
	if err != nil {
		return nil, &CorruptBlockError{BlockID: bi.ID, Offset: bi.Offset, Reason: "primitive block", Err: err}
	}
	return blk, nil
}
