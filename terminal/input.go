package main

import (
	"io"
)

// input owns the only goroutine reading stdin. Line prompts and raw keystroke modes take turns
// reading from it; only one Reader may be in use at a time.
type input struct {
	chunks  chan []byte
	pending []byte
}

func newInput(r io.Reader) *input {
	in := &input{chunks: make(chan []byte)}
	go in.pump(r)
	return in
}

func (in *input) pump(r io.Reader) {
	defer close(in.chunks)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			in.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Reader returns a view of the input that reports io.EOF once done is closed.
// A nil done never ends.
func (in *input) Reader(done <-chan struct{}) io.Reader {
	return &inputReader{in: in, done: done}
}

type inputReader struct {
	in   *input
	done <-chan struct{}
}

func (r *inputReader) Read(p []byte) (int, error) {
	in := r.in
	if len(in.pending) == 0 {
		select {
		case chunk, ok := <-in.chunks:
			if !ok {
				return 0, io.EOF
			}
			in.pending = chunk
		case <-r.done:
			return 0, io.EOF
		}
	}
	n := copy(p, in.pending)
	in.pending = in.pending[n:]
	return n, nil
}
