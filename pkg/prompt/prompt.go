// Package prompt collects operator inputs from the terminal: plain lines,
// passwords read without echo, and shape-checked one-time codes.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// mfaAttempts is how many times a malformed one-time code may be re-entered
// before the prompt gives up.
const mfaAttempts = 3

// Prompter reads operator inputs. The zero value is not usable; construct
// with New or NewWithIO.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // terminal fd for no-echo reads; negative when not a terminal
}

// New returns a Prompter bound to stdin/stdout.
func New() *Prompter {
	return &Prompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
}

// NewWithIO returns a Prompter over arbitrary streams. Password reads echo
// in this mode since there is no terminal to control.
func NewWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
		fd:  -1,
	}
}

// ReadLine prints the label and returns one trimmed line of input.
func (p *Prompter) ReadLine(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword prints the label and reads a line without echoing it back
// to the terminal. Falls back to a plain read when stdin is not a terminal
// (tests, pipes).
func (p *Prompter) ReadPassword(label string) (string, error) {
	if p.fd >= 0 && term.IsTerminal(p.fd) {
		fmt.Fprintf(p.out, "%s: ", label)
		secret, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}
	return p.ReadLine(label)
}

// ReadMFACode prompts for a one-time code and re-prompts until it has the
// right shape: exactly six ASCII digits. The code is validated for shape
// only, never cryptographically.
func (p *Prompter) ReadMFACode(label string) (string, error) {
	for attempt := 0; attempt < mfaAttempts; attempt++ {
		code, err := p.ReadLine(label)
		if err != nil {
			return "", err
		}
		if ValidMFACode(code) {
			return code, nil
		}
		fmt.Fprintln(p.out, "Code must be exactly six digits.")
	}
	return "", fmt.Errorf("no valid code after %d attempts", mfaAttempts)
}

// ValidMFACode reports whether the code is exactly six ASCII digits.
func ValidMFACode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
