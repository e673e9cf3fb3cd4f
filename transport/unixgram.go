package transport

import (
	"fmt"
	"net"
	"os"
)

// UnixgramTransport is a Transport backed by a "unixgram" domain socket,
// grounded on the dial/send shape of a thin-client launcher pattern seen
// elsewhere in the retrieval pack. "unixgram" (not the connection-oriented
// "unixpacket") is used deliberately: two peers that each bind only their
// own local address, with neither side calling Listen/Accept or waiting
// for the other to exist first, can still exchange datagrams addressed
// directly to each other.
type UnixgramTransport struct {
	conn   *net.UnixConn
	remote *net.UnixAddr
}

// DialUnixgram binds localAddr as this peer's own socket and remembers
// remoteAddr as the peer to send to; unlike a connected dial, remoteAddr
// does not need to exist yet. Both addresses are unix socket paths; the
// caller is responsible for removing a stale local socket file left by a
// previous run before calling this.
func DialUnixgram(localAddr, remoteAddr string) (*UnixgramTransport, error) {
	local, err := net.ResolveUnixAddr("unixgram", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local addr %q: %w", localAddr, err)
	}
	remote, err := net.ResolveUnixAddr("unixgram", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve remote addr %q: %w", remoteAddr, err)
	}
	conn, err := net.ListenUnixgram("unixgram", local)
	if err != nil {
		return nil, fmt.Errorf("bind %q: %w", localAddr, err)
	}
	return &UnixgramTransport{conn: conn, remote: remote}, nil
}

// Send addresses data to the remote socket as a single datagram.
func (t *UnixgramTransport) Send(data []byte) error {
	n, err := t.conn.WriteToUnix(data, t.remote)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

// Receive reads up to maxLen bytes of the next datagram addressed to this
// socket, from whatever peer sent it.
func (t *UnixgramTransport) Receive(maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, _, err := t.conn.ReadFromUnix(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close closes the underlying socket and removes its local socket file,
// since unixgram sockets are backed by a filesystem path that otherwise
// outlives the process.
func (t *UnixgramTransport) Close() error {
	local, _ := t.conn.LocalAddr().(*net.UnixAddr)
	err := t.conn.Close()
	if local != nil && local.Name != "" {
		os.Remove(local.Name)
	}
	return err
}
