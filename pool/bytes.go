package pool

import (
	"sync"
)

// Bytes is a pool of byte slices. Get returns a slice of exactly the
// requested length; its capacity may be larger.
type Bytes struct {
	pool sync.Pool
}

func NewBytes() *Bytes {
	return &Bytes{}
}

func (p *Bytes) Get(size int) []byte {
	if v, ok := p.pool.Get().(*[]byte); ok && cap(*v) >= size {
		return (*v)[:size]
	}
	return make([]byte, size)
}

func (p *Bytes) Put(b []byte) {
	if !ReuseMemory || cap(b) == 0 {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
