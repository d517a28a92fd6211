// Package status defines the kernel-wide return-value convention: no
// error-propagation type, just an int status word and the -1/NULL
// convention of the original source. Modeled on go-fuse's raw.Status /
// fuse.OK convention, but with the sign and zero value the original
// kernel actually uses.
package status

// Status is the int32 return value every kernel-internal operation
// uses in place of Go's error interface. Zero is success; a negative
// value is a failure (the kernel does not distinguish error "kinds"
// beyond what gets logged at the fault site).
type Status int32

const (
	OK      Status = 0
	EINVAL  Status = -1
	ENOENT  Status = -2
	ENOMEM  Status = -3
	EMFILE  Status = -4
	ENOSPC  Status = -5
	EIO     Status = -6
	ENOSYS  Status = -7
	EBUSY   Status = -8
	ECHILD  Status = -9
	ENOTTY  Status = -10
	ENOEXEC Status = -11

	// ExecSucceeded is Exec's success return: distinct from OK because a
	// successful exec does not return a value to the caller at all, it
	// resumes at a rewritten syscall frame, and the dispatch loop needs
	// to tell the two cases apart so it doesn't overwrite the frame's
	// EAX after Exec has already set it.
	ExecSucceeded Status = 1
)

// Ok reports whether the status represents success.
func (s Status) Ok() bool {
	return s == OK
}

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case EINVAL:
		return "EINVAL"
	case ENOENT:
		return "ENOENT"
	case ENOMEM:
		return "ENOMEM"
	case EMFILE:
		return "EMFILE"
	case ENOSPC:
		return "ENOSPC"
	case EIO:
		return "EIO"
	case ENOSYS:
		return "ENOSYS"
	case EBUSY:
		return "EBUSY"
	case ECHILD:
		return "ECHILD"
	case ENOTTY:
		return "ENOTTY"
	case ENOEXEC:
		return "ENOEXEC"
	case ExecSucceeded:
		return "ExecSucceeded"
	default:
		return "unknown status"
	}
}
