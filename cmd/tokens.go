package cmd

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"github.com/fzft/go-probed-set/deps/linenoise"
	"github.com/peterh/liner"
)

// lineSource yields input one line at a time. prompt is only shown by
// sources that own the terminal.
type lineSource interface {
	Line(prompt string) (string, error)
}

type readerSource struct {
	r *bufio.Reader
}

func newReaderSource(r io.Reader) *readerSource {
	return &readerSource{r: bufio.NewReader(r)}
}

func (s *readerSource) Line(string) (string, error) {
	line, err := s.r.ReadString('\n')
	if err == io.EOF && line != "" {
		// Last line without a trailing newline.
		return line, nil
	}
	return strings.TrimRight(line, "\r\n"), err
}

type linerSource struct {
	ln *linenoise.LineNoise
}

func (s *linerSource) Line(prompt string) (string, error) {
	line, err := s.ln.Prompt(prompt)
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		s.ln.AppendHistory(line)
	}
	return line, nil
}

// tokenizer splits lines into whitespace separated words, reading further
// lines as words are consumed.
type tokenizer struct {
	src  lineSource
	eof  bool
	line string // unread remainder of the current line
}

func newTokenizer(src lineSource) *tokenizer {
	return &tokenizer{src: src}
}

// next returns the next word, or io.EOF once the input is exhausted.
func (t *tokenizer) next(prompt string) (string, error) {
	for {
		t.line = strings.TrimLeftFunc(t.line, unicode.IsSpace)
		if t.line != "" {
			break
		}
		if t.eof {
			return "", io.EOF
		}
		line, err := t.src.Line(prompt)
		if err == io.EOF {
			t.eof = true
		} else if err != nil {
			return "", err
		}
		t.line = line
	}
	end := strings.IndexFunc(t.line, unicode.IsSpace)
	if end < 0 {
		end = len(t.line)
	}
	word := t.line[:end]
	t.line = t.line[end:]
	return word, nil
}

// restOfLine drops and returns what is left of the current line verbatim,
// including the whitespace that followed the previous word.
func (t *tokenizer) restOfLine() string {
	rest := t.line
	t.line = ""
	return rest
}

// done reports whether the input is known to be exhausted.
func (t *tokenizer) done() bool {
	return t.eof && strings.TrimSpace(t.line) == ""
}
