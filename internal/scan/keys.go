package scan

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"unicode"
)

type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyEscape
	KeyInterrupt
	KeyBackspace
	KeyOther
)

// Key is one keystroke as delivered by a terminal in raw mode.
type Key struct {
	Kind KeyKind
	Rune rune
}

// KeyReader decodes a raw terminal byte stream into Keys. Escape sequences such as arrow keys
// are reported as a single KeyOther.
type KeyReader struct {
	r *bufio.Reader
}

func NewKeyReader(r io.Reader) *KeyReader {
	return &KeyReader{r: bufio.NewReader(r)}
}

func (kr *KeyReader) ReadKey() (Key, error) {
	r, _, err := kr.r.ReadRune()
	if err != nil {
		return Key{}, err
	}
	switch {
	case r == '\r' || r == '\n':
		return Key{Kind: KeyEnter}, nil
	case r == 0x03:
		return Key{Kind: KeyInterrupt}, nil
	case r == 0x7f || r == 0x08:
		return Key{Kind: KeyBackspace}, nil
	case r == 0x1b:
		if kr.r.Buffered() == 0 {
			return Key{Kind: KeyEscape}, nil
		}
		kr.skipSequence()
		return Key{Kind: KeyOther}, nil
	case unicode.IsPrint(r):
		return Key{Kind: KeyRune, Rune: r}, nil
	}
	return Key{Kind: KeyOther}, nil
}

// skipSequence consumes a CSI or SS3 sequence after ESC.
func (kr *KeyReader) skipSequence() {
	b, err := kr.r.ReadByte()
	if err != nil || (b != '[' && b != 'O') {
		return
	}
	for kr.r.Buffered() > 0 {
		b, err := kr.r.ReadByte()
		if err != nil || (b >= 0x40 && b <= 0x7e) {
			return
		}
	}
}

// Keyboard forwards keystrokes read from one input to whichever listener is registered.
// Keys arriving with no listener are dropped.
type Keyboard struct {
	mu       sync.Mutex
	listener chan Key
}

func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// Run reads keys from r until ctx is cancelled or r fails.
func (kb *Keyboard) Run(ctx context.Context, r io.Reader) error {
	kr := NewKeyReader(r)
	for {
		k, err := kr.ReadKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		kb.deliver(ctx, k)
	}
}

func (kb *Keyboard) deliver(ctx context.Context, k Key) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.listener == nil {
		return
	}
	select {
	case kb.listener <- k:
	case <-ctx.Done():
	}
}

// Listen registers the single listener, replacing any previous one. The returned function
// deregisters it and closes the channel.
func (kb *Keyboard) Listen() (<-chan Key, func()) {
	ch := make(chan Key, 64)
	kb.mu.Lock()
	if kb.listener != nil {
		close(kb.listener)
	}
	kb.listener = ch
	kb.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			kb.mu.Lock()
			if kb.listener == ch {
				close(ch)
				kb.listener = nil
			}
			kb.mu.Unlock()
		})
	}
}
