package sevenzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/archivist/pkg/archivist/codec"
	"github.com/jamesainslie/archivist/pkg/archivist/crypto"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// Limits applied while parsing untrusted headers.
const (
	maxFolders = 1 << 20
	maxCoders  = 64
	maxFiles   = 1 << 24
)

// probe holds what the headers say about encryption: whether the header
// itself is encrypted, and for each file whether its data folder is.
type probe struct {
	headerEncrypted bool

	// fileEncrypted is indexed like the file list; files without data are
	// never encrypted.
	fileEncrypted []bool
}

type coderInfo struct {
	id    []byte
	props []byte
}

type folderInfo struct {
	coders      []coderInfo
	unpackSizes []uint64
	crcDefined  bool
	encrypted   bool
}

// unpackSize is the size of the final output of the folder.
func (f folderInfo) unpackSize() uint64 {
	if len(f.unpackSizes) == 0 {
		return 0
	}
	return f.unpackSizes[len(f.unpackSizes)-1]
}

type streamsInfo struct {
	packPos   uint64
	packSizes []uint64
	folders   []folderInfo

	// streams is the number of files stored in each folder.
	streams []int
}

func (s *streamsInfo) anyEncrypted() bool {
	for _, f := range s.folders {
		if f.encrypted {
			return true
		}
	}
	return false
}

// probeFile reads the signature header and the header database of the 7z
// file at path.
func probeFile(path string) (*probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, path, err)
	}
	defer f.Close()

	var sh [signatureHeaderLen]byte
	if _, err := io.ReadFull(f, sh[:]); err != nil {
		return nil, malformed("signature header", err)
	}
	if !bytes.Equal(sh[:len(signature)], signature) {
		return nil, malformed("bad signature", nil)
	}
	offset := binary.LittleEndian.Uint64(sh[12:])
	size := binary.LittleEndian.Uint64(sh[20:])
	if size == 0 {
		return &probe{}, nil
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", types.ErrIO, path, err)
	}
	if offset+size+signatureHeaderLen > uint64(info.Size()) {
		return nil, malformed("header beyond end of file", nil)
	}

	h := newHeaderReader(io.NewSectionReader(f, int64(signatureHeaderLen+offset), int64(size)))
	id, err := h.readByte()
	if err != nil {
		return nil, err
	}
	switch id {
	case idHeader:
		return parseHeader(h)
	case idEncodedHeader:
		si, err := parseStreamsInfo(h)
		if err != nil {
			return nil, err
		}
		if si.anyEncrypted() {
			return &probe{headerEncrypted: true}, nil
		}
		r, err := decodeHeader(f, si)
		if err != nil {
			return nil, err
		}
		h = newHeaderReader(r)
		if id, err := h.readByte(); err != nil || id != idHeader {
			return nil, malformed("encoded header does not hold a header", err)
		}
		return parseHeader(h)
	}
	return nil, malformed(fmt.Sprintf("unexpected header id %#x", id), nil)
}

// decodeHeader returns the decompressed header described by si. Only the
// single coder LZMA and LZMA2 layouts 7-Zip uses for headers are handled.
func decodeHeader(f io.ReaderAt, si *streamsInfo) (io.Reader, error) {
	if len(si.folders) != 1 || len(si.packSizes) < 1 || len(si.folders[0].coders) != 1 {
		return nil, malformed("unsupported encoded header layout", nil)
	}
	folder := si.folders[0]
	c := folder.coders[0]
	packed := io.NewSectionReader(f, int64(signatureHeaderLen+si.packPos), int64(si.packSizes[0]))
	size := folder.unpackSize()

	switch {
	case bytes.Equal(c.id, coderLZMA):
		return codec.NewLZMAReader(packed, c.props, int64(size))
	case bytes.Equal(c.id, coderLZMA2) && len(c.props) == 1:
		r, err := codec.NewLZMA2Reader(packed, c.props[0])
		if err != nil {
			return nil, err
		}
		return io.LimitReader(r, int64(size)), nil
	}
	return nil, malformed(fmt.Sprintf("unsupported header coder % x", c.id), nil)
}

func parseHeader(h *headerReader) (*probe, error) {
	var (
		main  *streamsInfo
		empty []bool
		files int
	)
	for {
		id, err := h.readByte()
		if err != nil {
			return nil, err
		}
		switch id {
		case idEnd:
			return buildProbe(main, files, empty)
		case idArchiveProps:
			if err := skipProperties(h); err != nil {
				return nil, err
			}
		case idAdditionalStream:
			if _, err := parseStreamsInfo(h); err != nil {
				return nil, err
			}
		case idMainStreams:
			if main, err = parseStreamsInfo(h); err != nil {
				return nil, err
			}
		case idFilesInfo:
			if files, empty, err = parseFiles(h); err != nil {
				return nil, err
			}
		default:
			return nil, malformed(fmt.Sprintf("unexpected property %#x", id), nil)
		}
	}
}

func buildProbe(main *streamsInfo, files int, empty []bool) (*probe, error) {
	p := &probe{fileEncrypted: make([]bool, files)}
	if main == nil {
		return p, nil
	}

	folder, left := 0, 0
	if len(main.streams) > 0 {
		left = main.streams[0]
	}
	for i := range files {
		if empty != nil && empty[i] {
			continue
		}
		for left == 0 {
			folder++
			if folder >= len(main.streams) {
				return nil, malformed("more files than streams", nil)
			}
			left = main.streams[folder]
		}
		p.fileEncrypted[i] = main.folders[folder].encrypted
		left--
	}
	return p, nil
}

func skipProperties(h *headerReader) error {
	for {
		kind, err := h.number()
		if err != nil {
			return err
		}
		if kind == idEnd {
			return nil
		}
		size, err := h.number()
		if err != nil {
			return err
		}
		if err := h.skip(size); err != nil {
			return err
		}
	}
}

func parseStreamsInfo(h *headerReader) (*streamsInfo, error) {
	si := &streamsInfo{}
	for {
		id, err := h.readByte()
		if err != nil {
			return nil, err
		}
		switch id {
		case idEnd:
			if si.streams == nil {
				si.streams = make([]int, len(si.folders))
				for i := range si.streams {
					si.streams[i] = 1
				}
			}
			return si, nil
		case idPackInfo:
			err = parsePackInfo(h, si)
		case idUnpackInfo:
			err = parseUnpackInfo(h, si)
		case idSubStreams:
			err = parseSubStreams(h, si)
		default:
			err = malformed(fmt.Sprintf("unexpected streams property %#x", id), nil)
		}
		if err != nil {
			return nil, err
		}
	}
}

func parsePackInfo(h *headerReader, si *streamsInfo) error {
	var err error
	if si.packPos, err = h.number(); err != nil {
		return err
	}
	n, err := h.count(maxFolders)
	if err != nil {
		return err
	}
	for {
		id, err := h.readByte()
		if err != nil {
			return err
		}
		switch id {
		case idEnd:
			return nil
		case idSize:
			si.packSizes = make([]uint64, n)
			for i := range si.packSizes {
				if si.packSizes[i], err = h.number(); err != nil {
					return err
				}
			}
		case idCRC:
			if err := h.digests(n); err != nil {
				return err
			}
		default:
			return malformed(fmt.Sprintf("unexpected pack property %#x", id), nil)
		}
	}
}

func parseUnpackInfo(h *headerReader, si *streamsInfo) error {
	if id, err := h.readByte(); err != nil || id != idFolder {
		return malformed("missing folder list", err)
	}
	n, err := h.count(maxFolders)
	if err != nil {
		return err
	}
	if external, err := h.readByte(); err != nil || external != 0 {
		return malformed("external folder list", err)
	}

	si.folders = make([]folderInfo, n)
	outs := make([]int, n)
	for i := range si.folders {
		if si.folders[i], outs[i], err = parseFolder(h); err != nil {
			return err
		}
	}

	if id, err := h.readByte(); err != nil || id != idCodersUnpackSize {
		return malformed("missing coder unpack sizes", err)
	}
	for i := range si.folders {
		sizes := make([]uint64, outs[i])
		for j := range sizes {
			if sizes[j], err = h.number(); err != nil {
				return err
			}
		}
		si.folders[i].unpackSizes = sizes
	}

	for {
		id, err := h.readByte()
		if err != nil {
			return err
		}
		switch id {
		case idEnd:
			return nil
		case idCRC:
			defined, err := h.optionalBits(n)
			if err != nil {
				return err
			}
			var buf [4]byte
			for i, d := range defined {
				si.folders[i].crcDefined = d
				if d {
					if _, err := io.ReadFull(h.r, buf[:]); err != nil {
						return malformed("read folder crc", err)
					}
				}
			}
		default:
			return malformed(fmt.Sprintf("unexpected unpack property %#x", id), nil)
		}
	}
}

func parseFolder(h *headerReader) (folderInfo, int, error) {
	var f folderInfo
	n, err := h.count(maxCoders)
	if err != nil {
		return f, 0, err
	}
	var totalIn, totalOut uint64
	for range n {
		flag, err := h.readByte()
		if err != nil {
			return f, 0, err
		}
		id, err := h.bytes(uint64(flag & 0x0f))
		if err != nil {
			return f, 0, err
		}
		in, out := uint64(1), uint64(1)
		if flag&0x10 != 0 {
			if in, err = h.number(); err != nil {
				return f, 0, err
			}
			if out, err = h.number(); err != nil {
				return f, 0, err
			}
		}
		var props []byte
		if flag&0x20 != 0 {
			size, err := h.number()
			if err != nil {
				return f, 0, err
			}
			if props, err = h.bytes(size); err != nil {
				return f, 0, err
			}
		}
		if bytes.Equal(id, crypto.SevenZipAESMethod) {
			f.encrypted = true
		}
		f.coders = append(f.coders, coderInfo{id: id, props: props})
		totalIn += in
		totalOut += out
	}
	if totalOut == 0 || totalOut > maxCoders || totalIn > maxCoders {
		return f, 0, malformed("bad coder stream counts", nil)
	}

	binds := totalOut - 1
	for range 2 * binds {
		if _, err := h.number(); err != nil {
			return f, 0, err
		}
	}
	if totalIn < binds {
		return f, 0, malformed("more bind pairs than inputs", nil)
	}
	if packed := totalIn - binds; packed > 1 {
		for range packed {
			if _, err := h.number(); err != nil {
				return f, 0, err
			}
		}
	}
	return f, int(totalOut), nil
}

func parseSubStreams(h *headerReader, si *streamsInfo) error {
	si.streams = make([]int, len(si.folders))
	for i := range si.streams {
		si.streams[i] = 1
	}
	for {
		id, err := h.readByte()
		if err != nil {
			return err
		}
		switch id {
		case idEnd:
			return nil
		case idNumUnpackStream:
			for i := range si.streams {
				if si.streams[i], err = h.count(maxFiles); err != nil {
					return err
				}
			}
		case idSize:
			for _, n := range si.streams {
				for range max(n-1, 0) {
					if _, err := h.number(); err != nil {
						return err
					}
				}
			}
		case idCRC:
			count := 0
			for i, n := range si.streams {
				if n != 1 || !si.folders[i].crcDefined {
					count += n
				}
			}
			if err := h.digests(count); err != nil {
				return err
			}
		default:
			return malformed(fmt.Sprintf("unexpected substreams property %#x", id), nil)
		}
	}
}

func parseFiles(h *headerReader) (int, []bool, error) {
	n, err := h.count(maxFiles)
	if err != nil {
		return 0, nil, err
	}
	var empty []bool
	for {
		kind, err := h.number()
		if err != nil {
			return 0, nil, err
		}
		if kind == idEnd {
			return n, empty, nil
		}
		size, err := h.number()
		if err != nil {
			return 0, nil, err
		}
		if kind == idEmptyStream {
			if empty, err = h.boolVector(n); err != nil {
				return 0, nil, err
			}
			// Writers may pad the vector.
			if extra := int64(size) - int64((n+7)/8); extra > 0 {
				if err := h.skip(uint64(extra)); err != nil {
					return 0, nil, err
				}
			}
			continue
		}
		if err := h.skip(size); err != nil {
			return 0, nil, err
		}
	}
}
