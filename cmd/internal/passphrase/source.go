package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase from an environment variable or a
// terminal prompt, caching the first result.
type Source struct {
	envVar  string
	label   string
	confirm bool

	lookupEnv func(string) (string, bool)
	prompt    func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// WithConfirmation asks for the passphrase twice when prompting. Used when a
// new keystore is created.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// WithLabel changes the prompt wording, e.g. "signer keystore".
func WithLabel(label string) Option {
	return func(s *Source) {
		if label = strings.TrimSpace(label); label != "" {
			s.label = label
		}
	}
}

// NewSource checks envVar before prompting on the terminal.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{
		envVar:    strings.TrimSpace(envVar),
		label:     "keystore",
		lookupEnv: os.LookupEnv,
		prompt:    promptTerminal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the passphrase. A set but blank environment variable is an
// error rather than an empty passphrase.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	first, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		if s.envVar != "" {
			return "", fmt.Errorf("%s passphrase required; set %s or run interactively: %w", s.label, s.envVar, err)
		}
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", fmt.Errorf("%s passphrase cannot be empty", s.label)
	}
	if s.confirm {
		second, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if second != first {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func promptTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available")
	}
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
