// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Record ID prefixes.
const (
	PrefixMicrolot      = "ml-"
	PrefixEvent         = "ev-"
	PrefixQuality       = "qc-"
	PrefixCertification = "cert-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// CodeAlphabet is used for public microlot codes. Letters and digits that are
// easy to confuse when read aloud or printed (0/O, 1/I/L, U/V) are left out.
var CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTWXYZ"

// CodeSuffixLength is the number of random characters at the end of a code.
var CodeSuffixLength = 6

// CodePrefix starts every public microlot code.
const CodePrefix = "ML-"

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MicrolotCode returns a public lookup code of the form
// ML-<base36 unix millis>-<random suffix>, e.g. "ML-M1X2K9QZ-7HQ4KD".
func MicrolotCode(now time.Time) (string, error) {
	suffix, err := nanoid.Generate(CodeAlphabet, CodeSuffixLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	return CodePrefix + stamp + "-" + suffix, nil
}
