package record

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// TFRecord 容器格式：每条记录为
//
//	uint64 length (little-endian)
//	uint32 masked crc32c(length bytes)
//	byte   data[length]
//	uint32 masked crc32c(data)
//
// CRC 使用 Castagnoli 多项式，mask 规则与 TensorFlow 一致。
var crcTable = crc32.MakeTable(crc32.Castagnoli)

const crcMaskDelta = 0xa282ead8

func maskedCRC(data []byte) uint32 {
	c := crc32.Checksum(data, crcTable)
	return ((c >> 15) | (c << 17)) + crcMaskDelta
}

// maxRecordBytes 单条记录的长度上限，防御损坏的长度头导致超额分配。
const maxRecordBytes = 64 << 20

// Reader 顺序读取一个 TFRecord 容器文件。
type Reader struct {
	r *bufio.Reader
}

// NewReader 创建 Reader。
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 1<<20)}
}

// Next 返回下一条记录的原始字节。
// 文件读尽返回 io.EOF；头部或数据校验失败返回 PARSE_ERROR（绝不产出截断/损坏的记录）。
func (r *Reader) Next() ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, parseErr("record: truncated tfrecord header")
		}
		return nil, fmt.Errorf("record: read header: %w", err)
	}
	length := binary.LittleEndian.Uint64(header[:8])
	lengthCRC := binary.LittleEndian.Uint32(header[8:12])
	if maskedCRC(header[:8]) != lengthCRC {
		return nil, parseErr("record: tfrecord length crc mismatch")
	}
	if length > maxRecordBytes {
		return nil, parseErr("record: tfrecord length %d exceeds limit", length)
	}
	buf := make([]byte, length+4)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, parseErr("record: truncated tfrecord payload")
		}
		return nil, fmt.Errorf("record: read payload: %w", err)
	}
	data := buf[:length]
	dataCRC := binary.LittleEndian.Uint32(buf[length:])
	if maskedCRC(data) != dataCRC {
		return nil, parseErr("record: tfrecord data crc mismatch")
	}
	return data, nil
}

// Writer 顺序写出一个 TFRecord 容器文件（数据工具与测试使用）。
type Writer struct {
	w *bufio.Writer
}

// NewWriter 创建 Writer。
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

// Write 追加一条记录。
func (w *Writer) Write(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:12], maskedCRC(header[:8]))
	if _, err := w.w.Write(header[:]); err != nil {
		return fmt.Errorf("record: write header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("record: write payload: %w", err)
	}
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))
	if _, err := w.w.Write(footer[:]); err != nil {
		return fmt.Errorf("record: write footer: %w", err)
	}
	return nil
}

// Flush 刷新缓冲。
func (w *Writer) Flush() error {
	return w.w.Flush()
}
