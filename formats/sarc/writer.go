// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamearc

package sarc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/woozymasta/gamearc"
)

// ErrTooLarge means container would exceed 32-bit offsets.
var ErrTooLarge = errors.New("sarc container exceeds 4 GiB")

// File is one payload to pack.
type File struct {
	// Name is stored in name table unless WriteOptions.OmitNames is set.
	Name string
	// Data is uncompressed payload.
	Data []byte
	// Chunks overrides Data with explicit per-chunk codecs.
	Chunks []Chunk
	// Codec compresses Data or every ChunkSize chunk.
	Codec gamearc.CodecKind
	// ChunkSize splits Data into chunks when positive.
	ChunkSize int
}

// Chunk is one independently compressed part of a chunked file.
type Chunk struct {
	// Data is uncompressed chunk payload.
	Data []byte
	// Codec compresses Data.
	Codec gamearc.CodecKind
}

// WriteOptions configures Write.
type WriteOptions struct {
	// Codecs encodes payloads; defaults to gamearc.DefaultCodecs.
	Codecs *gamearc.CodecRegistry
	// DataOffset is minimal offset of first payload byte; defaults to HeaderSize.
	DataOffset int64
	// OmitNames writes no name table so readers synthesize names.
	OmitNames bool
}

// applyDefaults fills zero-valued write options with defaults.
func (opts *WriteOptions) applyDefaults() {
	if opts.Codecs == nil {
		opts.Codecs = gamearc.DefaultCodecs()
	}
	if opts.DataOffset < HeaderSize {
		opts.DataOffset = HeaderSize
	}
}

// WriteResult contains pack statistics.
type WriteResult struct {
	// Records is number of written records.
	Records int `json:"records" yaml:"records"`
	// DataSize is total stored payload bytes.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// Size is total container size.
	Size int64 `json:"size" yaml:"size"`
}

// encodedFile is one file with its stored payload.
type encodedFile struct {
	payload      []byte
	name         string
	decompressed int64
	codecID      uint16
	flags        uint16
}

// Write packs files into SARC container.
func Write(w io.Writer, files []File, opts WriteOptions) (WriteResult, error) {
	opts.applyDefaults()

	encoded := make([]encodedFile, len(files))
	for i, f := range files {
		ef, err := encodeFile(opts.Codecs, f)
		if err != nil {
			return WriteResult{}, fmt.Errorf("encode %s: %w", f.Name, err)
		}
		if opts.OmitNames {
			ef.name = ""
		}

		encoded[i] = ef
	}

	offset := opts.DataOffset
	offsets := make([]int64, len(encoded))
	var dataSize int64
	for i := range encoded {
		offsets[i] = offset
		offset += int64(len(encoded[i].payload))
		dataSize += int64(len(encoded[i].payload))
	}

	tableOffset := offset
	nameTableOffset := int64(0)
	var names bytes.Buffer
	nameOffsets := make([]int64, len(encoded))
	for i := range encoded {
		if encoded[i].name == "" {
			continue
		}

		nameOffsets[i] = int64(names.Len())
		encoded[i].flags |= FlagNamed
		names.WriteString(encoded[i].name)
		names.WriteByte(0)
	}
	if names.Len() > 0 {
		nameTableOffset = tableOffset + int64(len(encoded))*RecordSize
	}

	total := tableOffset + int64(len(encoded))*RecordSize + int64(names.Len())
	if total > math.MaxUint32 {
		return WriteResult{}, ErrTooLarge
	}

	bw := bufio.NewWriter(w)
	var header [HeaderSize]byte
	copy(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(encoded)))      //nolint:gosec // bounded by total check
	binary.LittleEndian.PutUint32(header[8:12], uint32(tableOffset))      //nolint:gosec // bounded by total check
	binary.LittleEndian.PutUint32(header[12:16], uint32(nameTableOffset)) //nolint:gosec // bounded by total check
	if _, err := bw.Write(header[:]); err != nil {
		return WriteResult{}, err
	}
	if pad := opts.DataOffset - HeaderSize; pad > 0 {
		if _, err := bw.Write(make([]byte, pad)); err != nil {
			return WriteResult{}, err
		}
	}

	for i := range encoded {
		if _, err := bw.Write(encoded[i].payload); err != nil {
			return WriteResult{}, err
		}
	}

	var row [RecordSize]byte
	for i, ef := range encoded {
		if ef.decompressed > math.MaxUint32 {
			return WriteResult{}, ErrTooLarge
		}

		binary.LittleEndian.PutUint32(row[0:4], uint32(offsets[i]))          //nolint:gosec // bounded by total check
		binary.LittleEndian.PutUint32(row[4:8], uint32(len(ef.payload)))     //nolint:gosec // bounded by total check
		binary.LittleEndian.PutUint32(row[8:12], uint32(ef.decompressed))    //nolint:gosec // checked above
		binary.LittleEndian.PutUint16(row[12:14], ef.codecID)
		binary.LittleEndian.PutUint16(row[14:16], ef.flags)
		binary.LittleEndian.PutUint32(row[16:20], uint32(nameOffsets[i]))    //nolint:gosec // bounded by total check
		if _, err := bw.Write(row[:]); err != nil {
			return WriteResult{}, err
		}
	}

	if _, err := bw.Write(names.Bytes()); err != nil {
		return WriteResult{}, err
	}
	if err := bw.Flush(); err != nil {
		return WriteResult{}, err
	}

	return WriteResult{Records: len(encoded), DataSize: dataSize, Size: total}, nil
}

// WriteFile packs files into SARC container at path through temp file and rename.
func WriteFile(path string, files []File, opts WriteOptions) (WriteResult, error) {
	return writeFileAtomic(path, func(w io.Writer) (WriteResult, error) {
		return Write(w, files, opts)
	})
}

// WriteWrapped compresses inner SARC container into SARZ form.
// ChunkSize above zero produces chunked payload.
func WriteWrapped(w io.Writer, inner []byte, codec gamearc.CodecKind, chunkSize int, codecs *gamearc.CodecRegistry) error {
	if codecs == nil {
		codecs = gamearc.DefaultCodecs()
	}

	var (
		payload []byte
		flags   uint16
		id      uint16
		err     error
	)
	if chunkSize > 0 {
		payload, err = encodeChunks(codecs, splitChunks(inner, chunkSize, codec))
		flags = FlagChunked
	} else {
		payload, id, err = encodePayload(codecs, codec, inner)
	}
	if err != nil {
		return err
	}

	var header [WrappedHeaderSize]byte
	copy(header[:4], WrappedMagic)
	binary.LittleEndian.PutUint16(header[4:6], id)
	binary.LittleEndian.PutUint16(header[6:8], flags)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(inner)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

// FromResources materializes resources into files for repacking with codec.
func FromResources(resources []*gamearc.Resource, codecs *gamearc.CodecRegistry, codec gamearc.CodecKind) ([]File, error) {
	files := make([]File, 0, len(resources))
	for i, res := range resources {
		data, err := res.ReadAll(codecs)
		if err != nil {
			return nil, &gamearc.ResourceError{Index: i, Name: res.Name, Err: err}
		}

		files = append(files, File{Name: res.Name, Data: data, Codec: codec})
	}

	return files, nil
}

// encodeFile encodes one file into stored form.
func encodeFile(codecs *gamearc.CodecRegistry, f File) (encodedFile, error) {
	chunks := f.Chunks
	if chunks == nil && f.ChunkSize > 0 {
		chunks = splitChunks(f.Data, f.ChunkSize, f.Codec)
	}

	if chunks != nil {
		payload, err := encodeChunks(codecs, chunks)
		if err != nil {
			return encodedFile{}, err
		}

		var total int64
		for _, c := range chunks {
			total += int64(len(c.Data))
		}

		return encodedFile{name: f.Name, payload: payload, decompressed: total, flags: FlagChunked}, nil
	}

	payload, id, err := encodePayload(codecs, f.Codec, f.Data)
	if err != nil {
		return encodedFile{}, err
	}

	return encodedFile{name: f.Name, payload: payload, decompressed: int64(len(f.Data)), codecID: id}, nil
}

// encodePayload compresses data, storing it raw when codec cannot shrink it.
func encodePayload(codecs *gamearc.CodecRegistry, codec gamearc.CodecKind, data []byte) ([]byte, uint16, error) {
	if codec.IsNone() {
		return data, CodecIDNone, nil
	}

	id, err := CodecID(codec)
	if err != nil {
		return nil, 0, err
	}

	out, err := codecs.Encode(codec, data)
	if gamearc.IsIncompressible(err) {
		return data, CodecIDNone, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return out, id, nil
}

// splitChunks splits data into chunkSize parts sharing codec.
func splitChunks(data []byte, chunkSize int, codec gamearc.CodecKind) []Chunk {
	chunks := make([]Chunk, 0, len(data)/chunkSize+1)
	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		chunks = append(chunks, Chunk{Data: data[start:end], Codec: codec})
	}

	return chunks
}

// encodeChunks writes chunk table and chunk payloads.
func encodeChunks(codecs *gamearc.CodecRegistry, chunks []Chunk) ([]byte, error) {
	payloads := make([][]byte, len(chunks))
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(chunks))) //nolint:gosec // chunk count bounded by caller

	var row [ChunkHeaderSize]byte
	for i, c := range chunks {
		payload, id, err := encodePayload(codecs, c.Codec, c.Data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		payloads[i] = payload
		binary.LittleEndian.PutUint16(row[0:2], id)
		binary.LittleEndian.PutUint16(row[2:4], 0)
		binary.LittleEndian.PutUint32(row[4:8], uint32(len(payload)))  //nolint:gosec // bounded by container size check
		binary.LittleEndian.PutUint32(row[8:12], uint32(len(c.Data))) //nolint:gosec // bounded by container size check
		buf.Write(row[:])
	}

	for _, p := range payloads {
		buf.Write(p)
	}

	return buf.Bytes(), nil
}

// writeFileAtomic writes output through temp file in target directory and renames it into place.
func writeFileAtomic(path string, write func(io.Writer) (WriteResult, error)) (WriteResult, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sarc-*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := write(tmp)
	if err != nil {
		return WriteResult{}, err
	}
	if err := tmp.Close(); err != nil {
		return WriteResult{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return WriteResult{}, fmt.Errorf("rename into place: %w", err)
	}

	success = true
	return res, nil
}
