package pathgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqids/sqids-go"
)

// Obfuscator turns a numeric id into an opaque, unique token.
type Obfuscator interface {
	Encode(id int64) string
}

// Sqids obfuscates ids with sqids. Distinct ids give distinct tokens.
type Sqids struct {
	s *sqids.Sqids
}

// NewSqids creates an obfuscator. An empty alphabet uses the sqids default.
func NewSqids(alphabet string, minLength uint8) (*Sqids, error) {
	opts := sqids.Options{MinLength: minLength}
	if strings.Contains(alphabet, "_") {
		return nil, fmt.Errorf("id alphabet must not contain %q", "_")
	}
	if alphabet != "" {
		opts.Alphabet = alphabet
	}
	s, err := sqids.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create id obfuscator: %w", err)
	}
	return &Sqids{s: s}, nil
}

func (o *Sqids) Encode(id int64) string {
	if id >= 0 {
		if token, err := o.s.Encode([]uint64{uint64(id)}); err == nil {
			return token
		}
	}
	// "_" is never part of the alphabet, so this cannot collide with a token.
	return "_" + strconv.FormatInt(id, 10)
}
