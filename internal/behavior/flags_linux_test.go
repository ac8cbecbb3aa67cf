package behavior

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestParseNumericOpenFlags(t *testing.T) {
	tests := []struct {
		raw  int
		want OpenFlags
	}{
		{unix.O_RDONLY, FlagReadOnly},
		{unix.O_WRONLY, FlagWriteOnly},
		{unix.O_RDWR, FlagReadWrite},
		{unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC, CreatFlags},
		{unix.O_RDONLY | unix.O_CLOEXEC | unix.O_DIRECTORY, FlagReadOnly | FlagCloseOnExec | FlagDirectory},
		{unix.O_RDWR | unix.O_TMPFILE, FlagReadWrite | FlagTmpFile},
	}

	for _, tt := range tests {
		for _, input := range []string{strconv.Itoa(tt.raw), "0x" + strconv.FormatInt(int64(tt.raw), 16)} {
			t.Run(input, func(t *testing.T) {
				assert.Equal(t, tt.want, ParseOpenFlags(input))
			})
		}
	}
}
