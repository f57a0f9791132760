// Package ufs implements an in-memory, POSIX-like user-space file system:
// named files made of fixed-size block chains, a descriptor table mapping
// small integers to open files, and reference-counted deferred deletion.
//
// A FileSystem is not safe for concurrent use by multiple goroutines: it
// models a single-threaded process's view of its own virtual filesystem.
package ufs

import "github.com/olegmenkov/sysprog/pkg/metrics"

const (
	// BlockSize is the fixed size of every block in a file's chain.
	BlockSize = 4096

	// MaxFileSize is the default hard cap on a single file's total
	// payload, used when New is given a non-positive maxFileSize.
	MaxFileSize = 100 * 1024 * 1024

	// descriptorPoolStartSize is the descriptor table's default initial
	// and floor capacity, used when New is given a non-positive
	// descriptorPoolFloor.
	descriptorPoolStartSize = 10

	// capacityMultiplier is the growth/shrink factor for the descriptor
	// table.
	capacityMultiplier = 2
)

// OpenFlags controls the access mode a descriptor is opened with.
type OpenFlags int

const (
	// ModeDefault (the zero value) grants unrestricted read and write
	// access without creating the file if absent.
	ModeDefault OpenFlags = 0
	// Create creates the file if it does not already exist.
	Create OpenFlags = 1 << iota
	// ReadOnly restricts the descriptor to reads.
	ReadOnly
	// WriteOnly restricts the descriptor to writes.
	WriteOnly
	// ReadWrite grants both read and write access.
	ReadWrite
)

// block is one fixed-size segment of a file's payload.
type block struct {
	data     [BlockSize]byte
	occupied int
	next     *block
	prev     *block
}

// file is a named object backed by a doubly-linked chain of blocks.
type file struct {
	name      string
	blockList *block
	lastBlock *block
	refs      int
	removed   bool

	next *file
	prev *file
}

// cursor locates a descriptor's current read/write position within a
// file's block chain.
type cursor struct {
	segment int // index of the block currently addressed
	pos     int // byte offset within that block, 0..BlockSize
}

// descriptor is an open handle onto a file.
type descriptor struct {
	file   *file
	flags  OpenFlags
	cursor cursor
}

// FileSystem is a single in-memory filesystem instance. The zero value is
// not usable; construct one with New.
type FileSystem struct {
	fileList *file

	descriptors []*descriptor
	count       int // highest occupied index + 1 (0 when no descriptor is open)

	lastErr ErrorCode

	maxFileSize     int
	descriptorFloor int
	openCount       int

	metrics *metrics.Registry
}

// New constructs an empty FileSystem with a descriptor table at its floor
// capacity. A non-positive maxFileSize or descriptorPoolFloor falls back
// to MaxFileSize / descriptorPoolStartSize, so New(0, 0) uses the default
// limits.
func New(maxFileSize, descriptorPoolFloor int) *FileSystem {
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	if descriptorPoolFloor <= 0 {
		descriptorPoolFloor = descriptorPoolStartSize
	}

	return &FileSystem{
		descriptors:     make([]*descriptor, descriptorPoolFloor),
		maxFileSize:     maxFileSize,
		descriptorFloor: descriptorPoolFloor,
		metrics:         metrics.NewRegistry(),
	}
}

// Metrics exposes the filesystem's in-process gauges: open descriptor
// count and total bytes allocated across every file's block chain.
func (fs *FileSystem) Metrics() *metrics.Registry {
	return fs.metrics
}

// refreshAllocation recomputes the bytes-allocated gauge by walking
// every file's block chain. UFS has no bound on file count, so this is
// O(blocks) rather than tracked incrementally through every call site
// that appends or frees a block.
func (fs *FileSystem) refreshAllocation() {
	var total int64
	for f := fs.fileList; f != nil; f = f.next {
		for b := f.blockList; b != nil; b = b.next {
			total += BlockSize
		}
	}
	fs.metrics.Set("ufs.bytes_allocated", total)
}

// Errno returns the error code of the most recent operation: NoErr if it
// succeeded, otherwise the code it failed with.
func (fs *FileSystem) Errno() ErrorCode {
	return fs.lastErr
}

func (fs *FileSystem) fail(code ErrorCode, format string, args ...any) *Error {
	fs.lastErr = code
	return newError(code, format, args...)
}

func (fs *FileSystem) ok() {
	fs.lastErr = NoErr
}

// adjustCapacity grows the descriptor table ×2 when full, or shrinks it ÷2
// when occupancy drops below half, never below fs.descriptorFloor.
func (fs *FileSystem) adjustCapacity() error {
	capacity := len(fs.descriptors)
	target := capacity

	switch {
	case fs.count >= capacity:
		target = capacity * capacityMultiplier
	case fs.count < capacity/capacityMultiplier && capacity > fs.descriptorFloor:
		target = capacity / capacityMultiplier
		if target < fs.descriptorFloor {
			target = fs.descriptorFloor
		}
	}

	if target == capacity {
		return nil
	}

	grown := make([]*descriptor, target)
	copy(grown, fs.descriptors[:min(capacity, target)])
	fs.descriptors = grown
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func newBlock() *block {
	return &block{}
}

// appendBlock adds a fresh zero-filled block to the tail of f's chain.
func appendBlock(f *file) {
	b := newBlock()
	if f.blockList == nil {
		f.blockList = b
		f.lastBlock = b
		return
	}
	b.prev = f.lastBlock
	f.lastBlock.next = b
	f.lastBlock = b
}

func mkfile(name string) *file {
	f := &file{name: name}
	appendBlock(f)
	return f
}

func (fs *FileSystem) linkFile(f *file) {
	f.next = fs.fileList
	if fs.fileList != nil {
		fs.fileList.prev = f
	}
	fs.fileList = f
}

func (fs *FileSystem) unlinkFile(f *file) {
	if f.prev != nil {
		f.prev.next = f.next
	}
	if f.next != nil {
		f.next.prev = f.prev
	}
	if fs.fileList == f {
		fs.fileList = f.next
	}
}

// find returns the visible (non-removed) file named name, or nil.
func (fs *FileSystem) find(name string) *file {
	for f := fs.fileList; f != nil; f = f.next {
		if !f.removed && f.name == name {
			return f
		}
	}
	return nil
}

func locateDescriptor(descriptors []*descriptor, fd int) *descriptor {
	if fd >= 0 && fd < len(descriptors) {
		return descriptors[fd]
	}
	return nil
}

// smallestFreeSlot returns the lowest index in the descriptor table that
// holds no descriptor, growing the table first if it is entirely full.
func (fs *FileSystem) smallestFreeSlot() (int, error) {
	for i, d := range fs.descriptors {
		if d == nil {
			return i, nil
		}
	}
	if err := fs.adjustCapacity(); err != nil {
		return -1, err
	}
	for i, d := range fs.descriptors {
		if d == nil {
			return i, nil
		}
	}
	return -1, newError(NoMem, "descriptor table exhausted after growth")
}

// isReadable and isWritable ignore the Create bit and decide access from
// the remaining access bits alone; with none set, access is unrestricted.
func isReadable(d *descriptor) bool {
	switch d.flags &^ Create {
	case ModeDefault, ReadOnly, ReadWrite:
		return true
	default:
		return false
	}
}

func isWritable(d *descriptor) bool {
	switch d.flags &^ Create {
	case ModeDefault, WriteOnly, ReadWrite:
		return true
	default:
		return false
	}
}

// Open opens filename, creating it first if flags includes Create and no
// such file exists. It returns the new descriptor index.
func (fs *FileSystem) Open(filename string, flags OpenFlags) (int, error) {
	target := fs.find(filename)

	if target == nil && flags&Create == 0 {
		return -1, fs.fail(NoFile, "file %q does not exist", filename)
	}
	if target == nil {
		target = mkfile(filename)
		fs.linkFile(target)
	}

	slot, err := fs.smallestFreeSlot()
	if err != nil {
		return -1, fs.fail(NoMem, "cannot allocate descriptor: %v", err)
	}

	fs.descriptors[slot] = &descriptor{file: target, flags: flags}
	target.refs++
	if slot >= fs.count {
		fs.count = slot + 1
	}

	fs.openCount++
	fs.metrics.Set("ufs.open_files", int64(fs.openCount))
	fs.refreshAllocation()

	fs.ok()
	return slot, nil
}

// blockAt walks f's chain to the block at the given segment index.
func blockAt(f *file, segment int) *block {
	b := f.blockList
	for i := 0; i < segment && b != nil; i++ {
		b = b.next
	}
	return b
}

// Write writes buf through fd, advancing its cursor, and returns len(buf)
// on success. A write that would push the file past its size cap writes
// nothing and fails with NoMem.
func (fs *FileSystem) Write(fd int, buf []byte) (int, error) {
	d := locateDescriptor(fs.descriptors, fd)
	if d == nil {
		return 0, fs.fail(NoFile, "descriptor %d is not open", fd)
	}
	if !isWritable(d) {
		return 0, fs.fail(NoPermission, "descriptor %d is not writable", fd)
	}

	f := d.file
	current := blockAt(f, d.cursor.segment)

	totalSize := current.occupied + d.cursor.segment*BlockSize
	if totalSize+len(buf) > fs.maxFileSize {
		return 0, fs.fail(NoMem, "write would exceed %d byte file cap", fs.maxFileSize)
	}

	written := 0
	for written < len(buf) {
		if d.cursor.pos == BlockSize {
			current = current.next
			if current == nil {
				appendBlock(f)
				current = f.lastBlock
			}
			d.cursor.pos = 0
			d.cursor.segment++
		}

		space := BlockSize - d.cursor.pos
		remaining := len(buf) - written
		if remaining < space {
			space = remaining
		}

		copy(current.data[d.cursor.pos:d.cursor.pos+space], buf[written:written+space])
		d.cursor.pos += space
		written += space

		if d.cursor.pos > current.occupied {
			current.occupied = d.cursor.pos
		}
	}

	fs.refreshAllocation()
	fs.ok()
	return written, nil
}

// Read reads up to len(buf) bytes from fd into buf, advancing its cursor.
// It returns fewer bytes than len(buf) at end of file.
func (fs *FileSystem) Read(fd int, buf []byte) (int, error) {
	d := locateDescriptor(fs.descriptors, fd)
	if d == nil {
		return 0, fs.fail(NoFile, "descriptor %d is not open", fd)
	}
	if !isReadable(d) {
		return 0, fs.fail(NoPermission, "descriptor %d is not readable", fd)
	}

	b := blockAt(d.file, d.cursor.segment)

	read := 0
	for read < len(buf) {
		if d.cursor.pos == BlockSize {
			b = b.next
			if b == nil {
				fs.ok()
				return read, nil
			}
			d.cursor.pos = 0
			d.cursor.segment++
		}

		available := b.occupied - d.cursor.pos
		remaining := len(buf) - read
		if remaining < available {
			available = remaining
		}
		if available <= 0 {
			fs.ok()
			return read, nil
		}

		copy(buf[read:read+available], b.data[d.cursor.pos:d.cursor.pos+available])
		d.cursor.pos += available
		read += available
	}

	fs.ok()
	return read, nil
}

func destroyChain(head *block) {
	for b := head; b != nil; {
		next := b.next
		b.next = nil
		b.prev = nil
		b = next
	}
}

// Close closes fd. If its file has been deleted and this was the last
// open reference, the file's storage is released.
func (fs *FileSystem) Close(fd int) error {
	if fd < 0 || fd >= fs.count || fs.descriptors[fd] == nil {
		return fs.fail(NoFile, "descriptor %d is not open", fd)
	}

	d := fs.descriptors[fd]
	f := d.file
	f.refs--

	if f.refs == 0 && f.removed {
		fs.unlinkFile(f)
		destroyChain(f.blockList)
	}

	fs.descriptors[fd] = nil

	if fd == fs.count-1 {
		for fs.count > 0 && fs.descriptors[fs.count-1] == nil {
			fs.count--
		}
	}

	if err := fs.adjustCapacity(); err != nil {
		return fs.fail(NoMem, "descriptor table shrink failed: %v", err)
	}

	fs.openCount--
	fs.metrics.Set("ufs.open_files", int64(fs.openCount))
	fs.refreshAllocation()

	fs.ok()
	return nil
}

// Delete removes filename from the namespace. If no descriptor currently
// references it, its storage is freed immediately; otherwise deletion is
// deferred until the last open descriptor is closed.
func (fs *FileSystem) Delete(filename string) error {
	f := fs.find(filename)
	if f == nil {
		return fs.fail(NoFile, "file %q does not exist", filename)
	}

	if f.refs == 0 {
		fs.unlinkFile(f)
		destroyChain(f.blockList)
	} else {
		f.removed = true
	}

	fs.refreshAllocation()
	fs.ok()
	return nil
}

// Resize truncates or extends fd's file to exactly newSize bytes.
// Truncation clamps any descriptor whose cursor now lies past the new end
// down to the new last block; extension appends zero-filled blocks.
func (fs *FileSystem) Resize(fd int, newSize int) error {
	d := locateDescriptor(fs.descriptors, fd)
	if d == nil {
		return fs.fail(NoFile, "descriptor %d is not open", fd)
	}
	if !isWritable(d) {
		return fs.fail(NoPermission, "descriptor %d is not writable", fd)
	}
	if newSize > fs.maxFileSize {
		return fs.fail(NoMem, "size %d exceeds %d byte file cap", newSize, fs.maxFileSize)
	}

	f := d.file

	// Every non-terminal block holds exactly BlockSize bytes, so the new
	// last block's index and occupancy follow directly from newSize.
	lastSegment := newSize / BlockSize
	lastOccupied := newSize % BlockSize
	if newSize > 0 && lastOccupied == 0 {
		lastSegment--
		lastOccupied = BlockSize
	}

	blockCount := 0
	for b := f.blockList; b != nil; b = b.next {
		blockCount++
	}

	switch {
	case lastSegment < blockCount-1:
		last := blockAt(f, lastSegment)
		destroyChain(last.next)
		last.next = nil
		last.occupied = lastOccupied
		f.lastBlock = last

		for _, other := range fs.descriptors {
			if other != nil && other.file == f && other.cursor.segment >= lastSegment {
				other.cursor.segment = lastSegment
				if other.cursor.pos > lastOccupied {
					other.cursor.pos = lastOccupied
				}
			}
		}
	case lastSegment > blockCount-1:
		f.lastBlock.occupied = BlockSize
		for i := blockCount; i <= lastSegment; i++ {
			appendBlock(f)
			f.lastBlock.occupied = BlockSize
		}
		f.lastBlock.occupied = lastOccupied
	default:
		f.lastBlock.occupied = lastOccupied
	}

	fs.refreshAllocation()
	fs.ok()
	return nil
}

// Destroy releases every file and descriptor, leaving fs equivalent to a
// freshly constructed FileSystem.
func (fs *FileSystem) Destroy() {
	for f := fs.fileList; f != nil; {
		next := f.next
		destroyChain(f.blockList)
		f.next = nil
		f.prev = nil
		f = next
	}
	fs.fileList = nil
	fs.descriptors = make([]*descriptor, fs.descriptorFloor)
	fs.count = 0
	fs.lastErr = NoErr
	fs.openCount = 0
	fs.metrics.Set("ufs.open_files", 0)
	fs.metrics.Set("ufs.bytes_allocated", 0)
}
