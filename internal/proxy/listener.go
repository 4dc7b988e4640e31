package proxy

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Socket-activation environment variables following the systemd
// convention (LISTEN_PID/LISTEN_FDS): spec.md §4.4.2 requires trying
// inherited descriptors first; SPEC_FULL.md §3 scopes this core-side
// contract to the Linux/systemd convention only, since the adapters
// that actually set these variables (launchd, systemd) are external
// collaborators per spec.md §1.
const (
	envListenPID = "LISTEN_PID"
	envListenFDs = "LISTEN_FDS"
	firstActivationFD = 3
)

// AcquireListener implements spec.md §4.4.2's three-source ordering:
// an inherited socket-activation descriptor, else an explicit port
// (0 meaning ephemeral, which net.Listen already grants for free).
func AcquireListener(port uint16) (net.Listener, error) {
	if ln, ok, err := inheritedListener(); ok {
		if err != nil {
			return nil, err
		}
		return ln, nil
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("proxy: listen on %s: %w", addr, err)
	}
	return ln, nil
}

// inheritedListener checks for a systemd-style socket-activation
// handoff: LISTEN_PID must match this process, LISTEN_FDS must be at
// least 1, and the first inherited descriptor is fd 3.
func inheritedListener() (net.Listener, bool, error) {
	pidStr := os.Getenv(envListenPID)
	fdStr := os.Getenv(envListenFDs)
	if pidStr == "" || fdStr == "" {
		return nil, false, nil
	}

	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, false, nil
	}
	count, err := strconv.Atoi(fdStr)
	if err != nil || count < 1 {
		return nil, false, nil
	}

	f := os.NewFile(uintptr(firstActivationFD), "oxidux-activation-socket")
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, true, fmt.Errorf("proxy: inherited activation fd %d: %w", firstActivationFD, err)
	}
	return ln, true, nil
}
