package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FilePipe is an illustrative, non-normative Transport that uses two
// append-mode files as a unidirectional byte pipe in each direction. Two
// FilePipe values wired to each other's files (A writes to "a-to-b" and
// reads "b-to-a"; B does the reverse) behave like a lossless,
// non-reordering channel.
type FilePipe struct {
	out *os.File
	in  *os.File
}

// NewFilePipe opens (creating if necessary) outPath for appending writes
// and inPath for reading, seeking the read side to its current end so
// stale data from a previous run is ignored.
func NewFilePipe(outPath, inPath string) (*FilePipe, error) {
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open out pipe %q: %w", outPath, err)
	}

	in, err := os.OpenFile(inPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("open in pipe %q: %w", inPath, err)
	}
	if _, err := in.Seek(0, os.SEEK_END); err != nil {
		out.Close()
		in.Close()
		return nil, fmt.Errorf("seek in pipe %q: %w", inPath, err)
	}

	return &FilePipe{out: out, in: in}, nil
}

// Send appends data to the outbound file.
func (p *FilePipe) Send(data []byte) error {
	if _, err := p.out.Write(data); err != nil {
		return err
	}
	return p.out.Sync()
}

// Receive reads up to maxLen freshly-appended bytes from the inbound file.
// Returning zero bytes (nothing new has been written yet) is normal and
// must not be treated as EOF by the caller.
func (p *FilePipe) Receive(maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := p.in.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return nil, nil
}

// Close releases the underlying files.
func (p *FilePipe) Close() error {
	err1 := p.out.Close()
	err2 := p.in.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
