package mem

import "errors"

var (
	errNoMemory = errors.New("mem: out of physical frames")
	errUnmapped = errors.New("mem: destination address not mapped")
)
