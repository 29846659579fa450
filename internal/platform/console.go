package platform

import "golang.org/x/sys/unix"

// Console writes kernel log lines straight to a raw file descriptor via
// unix.Write, bypassing the buffered os.Stdout path the rest of the Go
// ecosystem favors — the point being that cmd/kernelsim's console sink is
// held to the same "raw device" discipline spec §4.I's klog describes,
// not a convenience wrapper around fmt.Println.
type Console struct {
	fd int
}

// NewConsole wraps an already-open file descriptor, normally 1 (stdout) or
// 2 (stderr) in the simulation harness.
func NewConsole(fd int) *Console {
	return &Console{fd: fd}
}

// Write implements io.Writer over unix.Write, retrying on EINTR the way the
// pack's uffd reader loop does for its own blocking syscalls.
func (c *Console) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}
