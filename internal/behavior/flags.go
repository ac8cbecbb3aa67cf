package behavior

import (
	"strings"
)

// OpenFlags is the decoded form of an open-family flags argument
type OpenFlags uint32

const (
	FlagReadOnly OpenFlags = 1 << iota
	FlagWriteOnly
	FlagReadWrite
	FlagCreate
	FlagExclusive
	FlagTruncate
	FlagAppend
	FlagDirectory
	FlagCloseOnExec
	FlagNonBlock
	FlagNoFollow
	FlagNoCTTY
	FlagSync
	FlagDSync
	FlagDirect
	FlagLargeFile
	FlagNoATime
	FlagPath
	FlagTmpFile
	FlagAsync
)

// flagNames keeps the canonical order used when rendering flags back to text
var flagNames = []struct {
	flag OpenFlags
	name string
}{
	{FlagReadOnly, "O_RDONLY"},
	{FlagWriteOnly, "O_WRONLY"},
	{FlagReadWrite, "O_RDWR"},
	{FlagCreate, "O_CREAT"},
	{FlagExclusive, "O_EXCL"},
	{FlagTruncate, "O_TRUNC"},
	{FlagAppend, "O_APPEND"},
	{FlagDirectory, "O_DIRECTORY"},
	{FlagCloseOnExec, "O_CLOEXEC"},
	{FlagNonBlock, "O_NONBLOCK"},
	{FlagNoFollow, "O_NOFOLLOW"},
	{FlagNoCTTY, "O_NOCTTY"},
	{FlagSync, "O_SYNC"},
	{FlagDSync, "O_DSYNC"},
	{FlagDirect, "O_DIRECT"},
	{FlagLargeFile, "O_LARGEFILE"},
	{FlagNoATime, "O_NOATIME"},
	{FlagPath, "O_PATH"},
	{FlagTmpFile, "O_TMPFILE"},
	{FlagAsync, "O_ASYNC"},
}

var flagsByName = func() map[string]OpenFlags {
	m := make(map[string]OpenFlags, len(flagNames)+1)
	for _, f := range flagNames {
		m[f.name] = f.flag
	}
	// glibc alias
	m["O_NDELAY"] = FlagNonBlock
	return m
}()

// CreatFlags is what creat(2) is equivalent to
const CreatFlags = FlagCreate | FlagWriteOnly | FlagTruncate

// ParseOpenFlags decodes a flags argument. Named forms like
// "O_WRONLY|O_CREAT|O_TRUNC" are accepted everywhere, raw numeric values only
// where the platform constants are known. Unknown names are dropped.
func ParseOpenFlags(s string) OpenFlags {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, ok := parseNumericFlags(s); ok {
		return f
	}

	var flags OpenFlags
	for _, part := range strings.Split(s, "|") {
		if f, ok := flagsByName[strings.TrimSpace(part)]; ok {
			flags |= f
		}
	}
	return flags
}

// Has reports whether every bit in f is set
func (o OpenFlags) Has(f OpenFlags) bool {
	return o&f == f
}

// String renders the flags as a bitwise-OR of names
func (o OpenFlags) String() string {
	var parts []string
	for _, f := range flagNames {
		if o.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}
