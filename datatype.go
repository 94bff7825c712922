package mirnade

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType attempts to detect the data type of a stream by checking
// against a set of known data types. GEO serves series matrices and platform
// files gzipped, but mirrors and local copies vary. Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
func DetectDataType(r io.Reader) (DataType, error) {
	buff := make([]byte, 6)
	n, err := io.ReadFull(r, buff)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return DataTypeInvalid, err
	}
	buff = buff[:n]

	// Match known signatures
Outer:
	for dt, sig := range byteCodeSigs {
		if len(buff) < len(sig) {
			continue
		}
		for position := range sig {
			if buff[position] != sig[position] {
				continue Outer
			}
		}
		return dt, nil
	}

	return DataTypeNoCompression, nil
}

// MaybeDecompressReadCloser sniffs the compression of rs, rewinds it, and
// returns a reader over the decompressed bytes. Closing the returned reader
// closes rs when rs is itself a Closer. Unix compress streams are detected but
// rejected with ErrDatasetFormat.
func MaybeDecompressReadCloser(rs io.ReadSeeker) (io.ReadCloser, error) {
	dt, err := DetectDataType(rs)
	if err != nil {
		return nil, pfx.Err(err)
	}

	// Reset the original reader
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, pfx.Err(err)
	}

	var under io.Closer = nopCloser{}
	if c, ok := rs.(io.Closer); ok {
		under = c
	}

	switch dt {
	case DataTypeGzip:
		gz, err := gzip.NewReader(rs)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return &layeredReadCloser{Reader: gz, closers: []io.Closer{gz, under}}, nil
	case DataTypeZip:
		return &layeredReadCloser{Reader: zipstream.NewReader(rs), closers: []io.Closer{under}}, nil
	case DataTypeBZip2:
		return &layeredReadCloser{Reader: bzip2.NewReader(rs), closers: []io.Closer{under}}, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(rs, 0)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return &layeredReadCloser{Reader: reader, closers: []io.Closer{under}}, nil
	case DataTypeZ:
		return nil, fmt.Errorf("%w: Unix compress (.Z) streams are not supported; recompress with gzip", ErrDatasetFormat)
	}

	// No data type detected. For now, we assume this is uncompressed.
	return &layeredReadCloser{Reader: rs, closers: []io.Closer{under}}, nil
}

// layeredReadCloser closes the decompressor and then the source.
type layeredReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (c *layeredReadCloser) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
