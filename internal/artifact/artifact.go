// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package artifact defines the kernel cache wire format shared by the
// offline compiler and the runtime registry.
//
// An artifact packs every compiled kernel of a module: its name, a
// content hash of the source it was built from, the device features it
// requires, its parameter schema, and one gzip-compressed SPIR-V blob
// per workgroup-size variant. Encoding is deterministic so rebuilding
// unchanged sources yields a byte-identical artifact.
package artifact

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// magic identifies the artifact format and its version. A version bump
// changes the trailing byte, making older runtimes reject new artifacts
// outright instead of misreading them.
var magic = []byte("KRNLC\x01")

// ErrBadMagic is returned when the artifact header does not match the
// format version this runtime understands.
var ErrBadMagic = errors.New("artifact: bad magic or unsupported version")

// ParamKind mirrors the runtime's parameter kinds in wire form.
type ParamKind uint8

const (
	// ParamPush is a scalar passed by value.
	ParamPush ParamKind = iota + 1
	// ParamItem is an element-wise buffer.
	ParamItem
	// ParamGlobal is a raw buffer indexed explicitly by the kernel.
	ParamGlobal
)

func (k ParamKind) valid() bool { return k >= ParamPush && k <= ParamGlobal }

// Param is one entry of a kernel's parameter schema, in declaration
// order. Scalar carries the runtime's scalar type code.
type Param struct {
	Name    string
	Kind    ParamKind
	Scalar  uint8
	Mutable bool
}

// Variant is one compiled workgroup-size specialization.
type Variant struct {
	Threads uint32
	SPIRV   []uint32
}

// Kernel is one compiled kernel with all of its variants.
type Kernel struct {
	Name     string
	Hash     [sha256.Size]byte
	Features uint32
	Params   []Param
	Variants []Variant
}

// Variant returns the compiled blob for the given workgroup size.
func (k *Kernel) Variant(threads uint32) (Variant, bool) {
	for _, v := range k.Variants {
		if v.Threads == threads {
			return v, true
		}
	}
	return Variant{}, false
}

// Artifact is a decoded kernel cache.
type Artifact struct {
	Kernels []Kernel
}

// Kernel returns the kernel with the given fully qualified name.
func (a *Artifact) Kernel(name string) (*Kernel, bool) {
	for i := range a.Kernels {
		if a.Kernels[i].Name == name {
			return &a.Kernels[i], true
		}
	}
	return nil, false
}

// HashSource returns the content hash of a kernel source. Line endings
// are normalized CRLF to LF first so checkouts on different platforms
// hash identically.
func HashSource(src []byte) [sha256.Size]byte {
	normalized := bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	return sha256.Sum256(normalized)
}

// Encode serializes the artifact. Kernels are emitted sorted by name
// and variants sorted by thread count, regardless of input order.
func Encode(a *Artifact) ([]byte, error) {
	kernels := make([]Kernel, len(a.Kernels))
	copy(kernels, a.Kernels)
	sort.Slice(kernels, func(i, j int) bool { return kernels[i].Name < kernels[j].Name })

	var buf bytes.Buffer
	buf.Write(magic)
	writeUint32(&buf, uint32(len(kernels)))

	for i := range kernels {
		k := &kernels[i]
		variants := make([]Variant, len(k.Variants))
		copy(variants, k.Variants)
		sort.Slice(variants, func(a, b int) bool { return variants[a].Threads < variants[b].Threads })

		writeString(&buf, k.Name)
		buf.Write(k.Hash[:])
		writeUint32(&buf, k.Features)

		writeUint32(&buf, uint32(len(k.Params)))
		for _, p := range k.Params {
			if !p.Kind.valid() {
				return nil, fmt.Errorf("artifact: kernel %q param %q has invalid kind %d", k.Name, p.Name, p.Kind)
			}
			writeString(&buf, p.Name)
			buf.WriteByte(byte(p.Kind))
			buf.WriteByte(p.Scalar)
			if p.Mutable {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}

		writeUint32(&buf, uint32(len(variants)))
		for _, v := range variants {
			writeUint32(&buf, v.Threads)
			blob, err := compressWords(v.SPIRV)
			if err != nil {
				return nil, fmt.Errorf("artifact: compress kernel %q variant %d: %w", k.Name, v.Threads, err)
			}
			writeUint32(&buf, uint32(len(blob)))
			buf.Write(blob)
		}
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded artifact, decompressing every variant.
func Decode(data []byte) (*Artifact, error) {
	r := bytes.NewReader(data)

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("artifact: read header: %w", err)
	}
	if !bytes.Equal(header, magic) {
		return nil, ErrBadMagic
	}

	nKernels, err := readCount(r, minKernelSize)
	if err != nil {
		return nil, fmt.Errorf("artifact: read kernel count: %w", err)
	}

	a := &Artifact{Kernels: make([]Kernel, 0, nKernels)}
	for i := uint32(0); i < nKernels; i++ {
		var k Kernel
		if k.Name, err = readString(r); err != nil {
			return nil, fmt.Errorf("artifact: read kernel name: %w", err)
		}
		if _, err = io.ReadFull(r, k.Hash[:]); err != nil {
			return nil, fmt.Errorf("artifact: kernel %q: read hash: %w", k.Name, err)
		}
		if k.Features, err = readUint32(r); err != nil {
			return nil, fmt.Errorf("artifact: kernel %q: read features: %w", k.Name, err)
		}

		nParams, err := readCount(r, minParamSize)
		if err != nil {
			return nil, fmt.Errorf("artifact: kernel %q: read param count: %w", k.Name, err)
		}
		k.Params = make([]Param, 0, nParams)
		for j := uint32(0); j < nParams; j++ {
			var p Param
			if p.Name, err = readString(r); err != nil {
				return nil, fmt.Errorf("artifact: kernel %q: read param name: %w", k.Name, err)
			}
			raw := make([]byte, 3)
			if _, err = io.ReadFull(r, raw); err != nil {
				return nil, fmt.Errorf("artifact: kernel %q param %q: read fields: %w", k.Name, p.Name, err)
			}
			p.Kind = ParamKind(raw[0])
			p.Scalar = raw[1]
			p.Mutable = raw[2] != 0
			if !p.Kind.valid() {
				return nil, fmt.Errorf("artifact: kernel %q param %q: invalid kind %d", k.Name, p.Name, raw[0])
			}
			k.Params = append(k.Params, p)
		}

		nVariants, err := readCount(r, minVariantSize)
		if err != nil {
			return nil, fmt.Errorf("artifact: kernel %q: read variant count: %w", k.Name, err)
		}
		k.Variants = make([]Variant, 0, nVariants)
		for j := uint32(0); j < nVariants; j++ {
			threads, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("artifact: kernel %q: read variant threads: %w", k.Name, err)
			}
			blobLen, err := readUint32(r)
			if err != nil {
				return nil, fmt.Errorf("artifact: kernel %q: read blob length: %w", k.Name, err)
			}
			if uint64(blobLen) > uint64(r.Len()) {
				return nil, fmt.Errorf("artifact: kernel %q variant %d: blob length %d exceeds remaining %d bytes",
					k.Name, threads, blobLen, r.Len())
			}
			blob := make([]byte, blobLen)
			if _, err = io.ReadFull(r, blob); err != nil {
				return nil, fmt.Errorf("artifact: kernel %q variant %d: read blob: %w", k.Name, threads, err)
			}
			words, err := decompressWords(blob)
			if err != nil {
				return nil, fmt.Errorf("artifact: kernel %q variant %d: %w", k.Name, threads, err)
			}
			k.Variants = append(k.Variants, Variant{Threads: threads, SPIRV: words})
		}
		a.Kernels = append(a.Kernels, k)
	}
	return a, nil
}

// Load reads and decodes an artifact file.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save encodes the artifact and writes it atomically next to path.
func Save(path string, a *Artifact) error {
	data, err := Encode(a)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func compressWords(words []uint32) ([]byte, error) {
	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWords(blob []byte) ([]uint32, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open gzip blob: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress blob: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("close gzip blob: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not word aligned", len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// Minimum encoded sizes, used to bound count fields read from the
// file before allocating. A kernel is at least a name length, hash,
// features, and two counts; a param at least a name length plus three
// bytes; a variant at least a thread count and blob length.
const (
	minKernelSize  = 4 + sha256.Size + 4 + 4 + 4
	minParamSize   = 4 + 3
	minVariantSize = 4 + 4
)

// readCount reads a u32 element count and bounds it against the bytes
// remaining, given the minimum encoded size of one element. A corrupt
// count fails here instead of sizing an allocation from it.
func readCount(r *bytes.Reader, minElem int) (uint32, error) {
	n, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minElem) > uint64(r.Len()) {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, r.Len())
	}
	return n, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if uint64(n) > uint64(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
