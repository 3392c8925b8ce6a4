package supervisor

import (
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

// FindAvailablePort returns the smallest port >= start that can be bound on
// 127.0.0.1. Each candidate is bound and immediately released, so another
// process may still take the port before the automation server binds it.
func FindAvailablePort(start int) (int, error) {
	if start < 1 {
		return 0, fmt.Errorf("invalid start port %d", start)
	}
	for port := start; port <= maxPort; port++ {
		if portFree(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port between %d and %d", start, maxPort)
}

func portFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
