package snapshot

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"snapdiff/internal/hash"
	"snapdiff/internal/tree"
)

// Record layout, all integers big-endian or uvarint:
//
//	magic "SNPD" | source string | version u64 | captured i64 | has-root u8 | [root dir] | xxhash64 u64
//
// dir:  name string | child count uvarint | children
// child: tag u8 (0 file, 1 dir) | file or dir
// file: name string | mtime varint | has-digest u8 | [32 digest bytes]
// string: uvarint length | bytes
//
// Paths are not stored.

var magic = []byte("SNPD")

const (
	tagFile byte = 0
	tagDir  byte = 1

	checksumSize = 8
)

func marshal(s *Snapshot) []byte {
	buf := append([]byte(nil), magic...)
	buf = appendString(buf, s.SourcePath)
	buf = binary.BigEndian.AppendUint64(buf, s.Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.CapturedAt))

	if s.Root == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = appendDir(buf, s.Root)
	}

	return binary.BigEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendDir(buf []byte, d *tree.Directory) []byte {
	buf = appendString(buf, d.Name())
	buf = binary.AppendUvarint(buf, uint64(d.Len()))

	for _, child := range d.Children() {
		switch c := child.(type) {
		case *tree.Directory:
			buf = append(buf, tagDir)
			buf = appendDir(buf, c)
		case *tree.File:
			buf = append(buf, tagFile)
			buf = appendFile(buf, c)
		}
	}

	return buf
}

func appendFile(buf []byte, f *tree.File) []byte {
	buf = appendString(buf, f.Name())
	buf = binary.AppendVarint(buf, f.ModTime())

	if d, ok := f.Digest(); ok {
		buf = append(buf, 1)
		return append(buf, d[:]...)
	}

	return append(buf, 0)
}

// decoder reads a record produced by marshal. Every failure wraps ErrCorruptSnapshot.
type decoder struct {
	buf []byte
	off int
}

func unmarshal(data []byte) (*Snapshot, error) {
	if len(data) < len(magic)+checksumSize {
		return nil, errors.Wrap(ErrCorruptSnapshot, "record too short")
	}

	body, trailer := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	if xxhash.Sum64(body) != binary.BigEndian.Uint64(trailer) {
		return nil, errors.Wrap(ErrCorruptSnapshot, "checksum mismatch")
	}
	if !bytes.Equal(body[:len(magic)], magic) {
		return nil, errors.Wrap(ErrCorruptSnapshot, "bad magic")
	}

	d := &decoder{buf: body, off: len(magic)}
	s := &Snapshot{}

	var err error
	if s.SourcePath, err = d.readString(); err != nil {
		return nil, err
	}
	if s.Version, err = d.readUint64(); err != nil {
		return nil, err
	}
	captured, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	s.CapturedAt = int64(captured)

	hasRoot, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch hasRoot {
	case 0:
	case 1:
		if s.Root, err = d.readDir(); err != nil {
			return nil, err
		}
	default:
		return nil, d.corrupt("bad root flag %d", hasRoot)
	}

	if d.off != len(d.buf) {
		return nil, d.corrupt("%d trailing bytes", len(d.buf)-d.off)
	}

	return s, nil
}

func (d *decoder) corrupt(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptSnapshot, "offset %d: "+format, append([]interface{}{d.off}, args...)...)
}

func (d *decoder) readByte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, d.corrupt("unexpected end of record")
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) readUint64() (uint64, error) {
	if len(d.buf)-d.off < 8 {
		return 0, d.corrupt("unexpected end of record")
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, d.corrupt("bad uvarint")
	}
	d.off += n
	return v, nil
}

func (d *decoder) readVarint() (int64, error) {
	v, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		return 0, d.corrupt("bad varint")
	}
	d.off += n
	return v, nil
}

func (d *decoder) readString() (string, error) {
	n, err := d.readUvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(len(d.buf)-d.off) {
		return "", d.corrupt("string length %d exceeds record", n)
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) readDir() (*tree.Directory, error) {
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	count, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	// every child takes at least two bytes
	if count > uint64(len(d.buf)-d.off) {
		return nil, d.corrupt("child count %d exceeds record", count)
	}

	dir := tree.NewDirectory("", name)

	for i := uint64(0); i < count; i++ {
		tag, err := d.readByte()
		if err != nil {
			return nil, err
		}

		var child tree.Entry
		switch tag {
		case tagDir:
			child, err = d.readDir()
		case tagFile:
			child, err = d.readFile()
		default:
			return nil, d.corrupt("bad entry tag %d", tag)
		}
		if err != nil {
			return nil, err
		}

		if !dir.Insert(child) {
			return nil, d.corrupt("duplicate entry %q in %q", child.Name(), name)
		}
	}

	return dir, nil
}

func (d *decoder) readFile() (*tree.File, error) {
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	mtime, err := d.readVarint()
	if err != nil {
		return nil, err
	}

	f := tree.NewFile("", name, mtime)

	has, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch has {
	case 0:
	case 1:
		if len(d.buf)-d.off < hash.Size {
			return nil, d.corrupt("truncated digest")
		}
		var digest hash.Digest
		copy(digest[:], d.buf[d.off:d.off+hash.Size])
		d.off += hash.Size
		f.SetDigest(digest)
	default:
		return nil, d.corrupt("bad digest flag %d", has)
	}

	return f, nil
}
