package packet

// allocator.go manages the data blocks that back Buffers.  Blocks released by
// their last owner are kept on a bounded free list and handed out again, and the
// allocator learns how much header space buffers typically need in front of
// their zero area so that new buffers can leave that much room.

// maxFreeListSize bounds the number of recycled blocks an Allocator holds
const maxFreeListSize = 1000

// bufferData is a reference counted block of bytes shared by Buffer views.
// dirtyStart and dirtyEnd bound the region some owner has claimed, in
// the virtual offsets of the owners
type bufferData struct {
	count      uint32
	size       uint32
	dirtyStart uint32
	dirtyEnd   uint32
	bytes      []byte
}

// Allocator holds the recycling state for buffer data blocks
type Allocator struct {
	freeList         []*bufferData
	maxSize          uint32
	recommendedStart uint32
}

var defaultAllocator = NewAllocator()

// DefaultAllocator returns the allocator shared by buffers built with NewBuffer
func DefaultAllocator() *Allocator {
	return defaultAllocator
}

// NewAllocator returns an allocator with no recycled blocks and no history
func NewAllocator() *Allocator {
	alloc := new(Allocator)
	alloc.freeList = []*bufferData{}
	return alloc
}

// Reset forgets all recycled blocks and the learned sizes
func (alloc *Allocator) Reset() {
	alloc.freeList = alloc.freeList[:0]
	alloc.maxSize = 0
	alloc.recommendedStart = 0
}

// FreeBlocks returns the number of blocks waiting for reuse
func (alloc *Allocator) FreeBlocks() int {
	return len(alloc.freeList)
}

// RecommendedStart returns the largest header room observed so far
func (alloc *Allocator) RecommendedStart() uint32 {
	return alloc.recommendedStart
}

// create returns a block of at least size bytes with a single owner
func (alloc *Allocator) create(size uint32) *bufferData {
	alloc.maxSize = max(alloc.maxSize, size)
	for len(alloc.freeList) > 0 {
		last := len(alloc.freeList) - 1
		data := alloc.freeList[last]
		alloc.freeList[last] = nil
		alloc.freeList = alloc.freeList[:last]
		if data.size >= size {
			data.count = 1
			return data
		}
	}
	return allocateData(size)
}

// recycle takes back a block nobody owns any longer
func (alloc *Allocator) recycle(data *bufferData) {
	if data.count != 0 {
		panic("recycling a buffer block that is still owned")
	}
	alloc.maxSize = max(alloc.maxSize, data.size)
	// blocks smaller than the biggest request seen are not worth keeping
	if data.size < alloc.maxSize || len(alloc.freeList) > maxFreeListSize {
		return
	}
	alloc.freeList = append(alloc.freeList, data)
}

// noteStart records how far into a block some buffer's zero area ended up starting
func (alloc *Allocator) noteStart(maxZeroAreaStart uint32) {
	alloc.recommendedStart = max(alloc.recommendedStart, maxZeroAreaStart)
}

func allocateData(size uint32) *bufferData {
	if size == 0 {
		size = 1
	}
	data := new(bufferData)
	data.count = 1
	data.size = size
	data.bytes = make([]byte, size)
	return data
}
