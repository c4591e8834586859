// ABOUTME: Line-oriented prompts for the interactive commands
// ABOUTME: Passwords are read without echo when stdin is a terminal

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type prompter struct {
	in  *bufio.Reader
	out io.Writer
	tty *os.File // nil unless stdin is a terminal
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = f
	}
	return p
}

// ask prints question and returns the trimmed answer, or defaultVal when
// the answer is empty or input has ended.
func (p *prompter) ask(question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	input, err := p.in.ReadString('\n')
	if err != nil && input == "" {
		fmt.Fprintln(p.out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func (p *prompter) confirm(question string, defaultYes bool) bool {
	def := "no"
	if defaultYes {
		def = "yes"
	}
	switch strings.ToLower(p.ask(question, def)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (p *prompter) password(question string) (string, error) {
	if p.tty == nil {
		return p.ask(question, ""), nil
	}

	fmt.Fprintf(p.out, "%s: ", question)
	b, err := term.ReadPassword(int(p.tty.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// newPassword asks twice and requires both answers to match.
func (p *prompter) newPassword() (string, error) {
	pw, err := p.password("New password")
	if err != nil {
		return "", err
	}
	again, err := p.password("Repeat password")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}
