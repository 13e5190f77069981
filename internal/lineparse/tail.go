package lineparse

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ring keeps the most recent lines pushed into it.
type ring struct {
	data  []string
	head  int
	count int
}

func newRing(size int) *ring {
	return &ring{data: make([]string, size)}
}

func (r *ring) push(s string) {
	if len(r.data) == 0 {
		return
	}
	idx := (r.head + r.count) % len(r.data)
	if r.count == len(r.data) {
		r.head = (r.head + 1) % len(r.data)
	} else {
		r.count++
	}
	r.data[idx] = s
}

func (r *ring) lines() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

// Tail returns up to n trailing lines read from rd. When completeOnly is set a
// final line without a terminating newline is dropped, since its writer may
// still be in the middle of producing it.
func Tail(rd io.Reader, n int, completeOnly bool) ([]string, error) {
	buf := newRing(n)
	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if err == io.EOF {
			if line != "" && !completeOnly {
				buf.push(trimEOL(line))
			}
			return buf.lines(), nil
		}
		if err != nil {
			return buf.lines(), err
		}
		buf.push(trimEOL(line))
	}
}

// TailFile is Tail over the file at path.
func TailFile(path string, n int, completeOnly bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Tail(f, n, completeOnly)
}

func trimEOL(s string) string {
	return strings.TrimRight(s, "\r\n")
}
