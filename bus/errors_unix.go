//go:build unix

package bus

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func errnoKind(err error) (Kind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return 0, false
	}
	switch errno {
	case unix.ETIMEDOUT:
		return Timeout, true
	case unix.EINVAL:
		return InvalidArgument, true
	case unix.ENOMEM:
		return OutOfMemory, true
	case unix.EBUSY, unix.EAGAIN:
		return Busy, true
	case unix.ENOENT, unix.ENODEV, unix.ENXIO:
		return NotFound, true
	case unix.EOPNOTSUPP, unix.ENOTTY:
		return Unsupported, true
	default:
		return Other, true
	}
}
