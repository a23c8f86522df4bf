package executor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"golang.org/x/crypto/ssh"
)

// SSHExecutor runs commands on fleet nodes over SSH with password auth.
// Every call opens a fresh connection and session: health probes and job
// launches never share state, so one wedged session cannot poison the next
// call. The latency cost is accepted for the failure isolation.
type SSHExecutor struct {
	port int
}

// NewSSHExecutor returns an executor dialing the given SSH port (22 when 0).
func NewSSHExecutor(port int) *SSHExecutor {
	if port == 0 {
		port = 22
	}
	return &SSHExecutor{port: port}
}

// Execute runs one command on the node. Remote failure of any kind (dial,
// auth, non-zero exit) is reported via ok=false with the diagnostic text;
// err is returned only for contract violations such as an incomplete node
// record. A non-responsive session is abandoned after timeout.
func (e *SSHExecutor) Execute(ctx context.Context, node *domain.Node, command string, timeout time.Duration) (bool, string, error) {
	if node == nil || node.Address == "" || node.Username == "" {
		return false, "", fmt.Errorf("malformed node record: %+v", node)
	}
	if command == "" {
		return false, "", fmt.Errorf("empty command")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(node.Address, fmt.Sprintf("%d", e.port))
	config := &ssh.ClientConfig{
		User:            node.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(node.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- nodes are operator-provisioned
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Sprintf("dial %s: %v", addr, err), nil
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return false, fmt.Sprintf("ssh handshake %s: %v", addr, err), nil
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return false, fmt.Sprintf("ssh session %s: %v", addr, err), nil
	}
	defer func() { _ = session.Close() }()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, runErr := session.CombinedOutput(command)
		done <- result{output: out, err: runErr}
	}()

	select {
	case <-ctx.Done():
		// Closing the client unblocks CombinedOutput; the goroutine's
		// result is discarded via the buffered channel.
		_ = client.Close()
		return false, fmt.Sprintf("command timed out on %s after %s", node.Address, timeout), nil
	case res := <-done:
		if res.err != nil {
			return false, fmt.Sprintf("%v: %s", res.err, res.output), nil
		}
		return true, string(res.output), nil
	}
}
