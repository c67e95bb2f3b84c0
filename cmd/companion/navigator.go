package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/target/companion-client/internal/ports"
)

var _ ports.Navigator = (*terminalNavigator)(nil)

// terminalNavigator tracks a virtual location. Navigating prints a hint
// because a terminal has no login screen to switch to.
type terminalNavigator struct {
	mu       sync.Mutex
	location string
	out      io.Writer
}

func newTerminalNavigator(location string, out io.Writer) *terminalNavigator {
	return &terminalNavigator{location: location, out: out}
}

func (n *terminalNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *terminalNavigator) Navigate(path string) {
	n.mu.Lock()
	n.location = path
	n.mu.Unlock()
	_, _ = fmt.Fprintln(n.out, "session expired or not signed in; run `companion login` to continue")
}
