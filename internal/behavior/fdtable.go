package behavior

// DescriptorEntry is the file bound to a descriptor by a successful open
type DescriptorEntry struct {
	Descriptor int
	Path       string
	Flags      OpenFlags
}

// DescriptorTable maps descriptors to the path and flags that produced them.
// Entries are never invalidated: close is not traced, so a reused descriptor
// stays bound to its last open until re-registered.
type DescriptorTable struct {
	entries map[int]DescriptorEntry
}

// NewDescriptorTable creates an empty table
func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{entries: make(map[int]DescriptorEntry)}
}

// Register binds fd, overwriting any previous binding
func (t *DescriptorTable) Register(fd int, path string, flags OpenFlags) {
	t.entries[fd] = DescriptorEntry{Descriptor: fd, Path: path, Flags: flags}
}

// Lookup returns the binding for fd
func (t *DescriptorTable) Lookup(fd int) (DescriptorEntry, bool) {
	e, ok := t.entries[fd]
	return e, ok
}

// Len returns the number of bound descriptors
func (t *DescriptorTable) Len() int {
	return len(t.entries)
}

// IsStandardDescriptor reports stdin, stdout and stderr
func IsStandardDescriptor(fd int) bool {
	return fd >= 0 && fd <= 2
}
