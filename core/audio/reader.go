package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
)

// blockReader 把 Source 转成 oto 读取的 float32 小端字节流
// 只按整块拉取，不足一块的读取由 pending 提供
type blockReader struct {
	src      Source
	block    []float32
	buf      []byte
	pending  []byte
	detached atomic.Bool
}

func newBlockReader(src Source, blockSize int) *blockReader {
	return &blockReader{
		src:   src,
		block: make([]float32, blockSize),
		buf:   make([]byte, blockSize*4),
	}
}

func (r *blockReader) detach() {
	r.detached.Store(true)
}

func (r *blockReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			if r.detached.Load() {
				break
			}
			r.src.Pull(r.block)
			for i, v := range r.block {
				binary.LittleEndian.PutUint32(r.buf[4*i:], math.Float32bits(v))
			}
			r.pending = r.buf
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	if n == 0 && r.detached.Load() {
		return 0, io.EOF
	}
	return n, nil
}
