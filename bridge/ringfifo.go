package bridge

import "code.hybscloud.com/atomix"

// ByteFIFO is a bounded single-producer/single-consumer byte ring buffer.
// It is wait-free on both ends: Write, Peek and ReadAdvance never spin or
// block, and neither side ever allocates. Capacity is rounded up to the
// next power of two so index wraparound reduces to a mask.
//
// Grounded on the cached-index SPSC ring in hayabusa-cloud-lfq's spsc.go
// (code.hybscloud.com/atomix's Uint64 with LoadRelaxed/LoadAcquire/
// StoreRelease), adapted from a fixed-size-element ring to a byte ring so
// it can carry variable-length (header, payload) pairs.
type ByteFIFO struct {
	buf  []byte
	mask uint64

	_          cachePad
	tail       atomix.Uint64 // producer's write cursor
	cachedHead uint64        // producer's cached view of head

	_          cachePad
	head       atomix.Uint64 // consumer's read cursor
	cachedTail uint64        // consumer's cached view of tail
}

type cachePad [64]byte

// NewByteFIFO returns a FIFO whose capacity is the next power of two >= n.
func NewByteFIFO(n int) *ByteFIFO {
	size := roundUpPow2(n)
	return &ByteFIFO{
		buf:  make([]byte, size),
		mask: uint64(size - 1),
	}
}

func roundUpPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the FIFO's byte capacity.
func (f *ByteFIFO) Cap() int {
	return len(f.buf)
}

// WriteSpace reports how many bytes can currently be written without
// dropping data.
func (f *ByteFIFO) WriteSpace() int {
	tail := f.tail.LoadRelaxed()
	head := f.head.LoadAcquire()
	used := tail - head
	return len(f.buf) - int(used)
}

// ReadSpace reports how many bytes are currently available to read.
func (f *ByteFIFO) ReadSpace() int {
	head := f.head.LoadRelaxed()
	tail := f.tail.LoadAcquire()
	return int(tail - head)
}

// Write appends data in one all-or-nothing operation: the caller is
// expected to precheck WriteSpace, and on insufficient space the event is
// dropped rather than partially written. It reports whether the data was
// written; on false, nothing was written.
func (f *ByteFIFO) Write(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	need := uint64(len(data))

	tail := f.tail.LoadRelaxed()
	used := tail - f.cachedHead
	if uint64(len(f.buf))-used < need {
		f.cachedHead = f.head.LoadAcquire()
		used = tail - f.cachedHead
		if uint64(len(f.buf))-used < need {
			return false
		}
	}

	start := tail & f.mask
	n := copy(f.buf[start:], data)
	if n < len(data) {
		copy(f.buf, data[n:])
	}
	f.tail.StoreRelease(tail + need)
	return true
}

// Peek copies up to len(buf) bytes starting at the current read cursor
// without advancing it. It returns the number of bytes copied, which may be
// less than len(buf) if fewer are available.
func (f *ByteFIFO) Peek(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	head := f.head.LoadRelaxed()
	avail := f.cachedTail - head
	if avail < uint64(len(buf)) {
		f.cachedTail = f.tail.LoadAcquire()
		avail = f.cachedTail - head
	}

	n := len(buf)
	if uint64(n) > avail {
		n = int(avail)
	}
	if n <= 0 {
		return 0
	}

	start := head & f.mask
	c := copy(buf[:n], f.buf[start:])
	if c < n {
		copy(buf[c:n], f.buf[:n-c])
	}
	return n
}

// ReadAdvance moves the read cursor forward by n bytes, committing bytes
// already obtained via Peek. The caller must not advance past ReadSpace().
func (f *ByteFIFO) ReadAdvance(n int) {
	if n <= 0 {
		return
	}
	head := f.head.LoadRelaxed()
	f.head.StoreRelease(head + uint64(n))
}

// Read is Peek followed by ReadAdvance of however many bytes were copied.
func (f *ByteFIFO) Read(buf []byte) int {
	n := f.Peek(buf)
	f.ReadAdvance(n)
	return n
}
