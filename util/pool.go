package util

import "sync"

// BufPool provides reusable read buffers sized to the per-read limit,
// so a burst of sessions does not allocate a fresh buffer per prompt.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReadLimit)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
