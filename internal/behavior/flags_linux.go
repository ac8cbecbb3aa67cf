package behavior

import (
	"strconv"

	"golang.org/x/sys/unix"
)

var numericFlags = []struct {
	bits int
	flag OpenFlags
}{
	{unix.O_CREAT, FlagCreate},
	{unix.O_EXCL, FlagExclusive},
	{unix.O_TRUNC, FlagTruncate},
	{unix.O_APPEND, FlagAppend},
	{unix.O_DIRECTORY, FlagDirectory},
	{unix.O_CLOEXEC, FlagCloseOnExec},
	{unix.O_NONBLOCK, FlagNonBlock},
	{unix.O_NOFOLLOW, FlagNoFollow},
	{unix.O_NOCTTY, FlagNoCTTY},
	{unix.O_SYNC, FlagSync},
	{unix.O_DSYNC, FlagDSync},
	{unix.O_DIRECT, FlagDirect},
	{unix.O_LARGEFILE, FlagLargeFile},
	{unix.O_NOATIME, FlagNoATime},
	{unix.O_PATH, FlagPath},
	{unix.O_TMPFILE, FlagTmpFile},
	{unix.O_ASYNC, FlagAsync},
}

// parseNumericFlags decodes a raw flags integer (decimal, 0x hex or 0 octal)
func parseNumericFlags(s string) (OpenFlags, bool) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, false
	}
	raw := int(v)

	var flags OpenFlags
	switch raw & unix.O_ACCMODE {
	case unix.O_RDONLY:
		flags |= FlagReadOnly
	case unix.O_WRONLY:
		flags |= FlagWriteOnly
	case unix.O_RDWR:
		flags |= FlagReadWrite
	}

	for _, nf := range numericFlags {
		// O_LARGEFILE is 0 on some architectures
		if nf.bits != 0 && raw&nf.bits == nf.bits {
			flags |= nf.flag
		}
	}
	// O_TMPFILE carries the O_DIRECTORY bit
	if flags.Has(FlagTmpFile) {
		flags &^= FlagDirectory
	}
	return flags, true
}
