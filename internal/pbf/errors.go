package pbf

import (
	"errors"
	"fmt"
)

var (
	// ErrEntityNotFound means no index entry covers an id. Extracts routinely
	// omit referenced entities, so callers treat this as recoverable.
	ErrEntityNotFound = errors.New("pbf: entity not found")

	// ErrTruncated means block framing runs past the end of the input.
	ErrTruncated = errors.New("pbf: truncated block framing")

	// ErrBlockNotIndexed is returned for block ids missing from the block table.
	ErrBlockNotIndexed = errors.New("pbf: block not in block table")

	// ErrNoSideFiles means one or more persisted side files are absent.
	ErrNoSideFiles = errors.New("pbf: side files not present")

	// ErrEmptyFile is returned when the input holds no blocks at all.
	ErrEmptyFile = errors.New("pbf: empty file")
)

// CorruptBlockError reports a block whose framing, compression or encoding
// cannot be decoded.
type CorruptBlockError struct {
	BlockID int
	Offset  int64
	Reason  string
	Err     error
}

func (e *CorruptBlockError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt block %d at offset %d: %s: %v", e.BlockID, e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt block %d at offset %d: %s", e.BlockID, e.Offset, e.Reason)
}

func (e *CorruptBlockError) Unwrap() error { return e.Err }

// UnsupportedFeatureError reports a required header feature this reader cannot honor.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("pbf: unsupported required feature %q", e.Feature)
}

// OverlapError reports two index entries of the same kind whose id ranges overlap.
type OverlapError struct {
	First, Second IndexEntry
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("pbf: overlapping %s ranges: block %d group %d [%d,%d] and block %d group %d [%d,%d]",
		e.First.Kind, e.First.Block, e.First.Group, e.First.MinID, e.First.MaxID,
		e.Second.Block, e.Second.Group, e.Second.MinID, e.Second.MaxID)
}

// SideFileError reports a malformed line in a side file.
type SideFileError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *SideFileError) Error() string {
	return fmt.Sprintf("%s:%d: malformed line %q: %v", e.Path, e.Line, e.Text, e.Err)
}

func (e *SideFileError) Unwrap() error { return e.Err }

