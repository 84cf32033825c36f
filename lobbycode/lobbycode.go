// Package lobbycode implements the human-shareable 6-character lobby code:
// generation, normalization, validation, and extraction from a pasted URL
// or chat snippet. See spec.md §6.
package lobbycode

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Alphabet excludes visually ambiguous characters: I, O, 0, 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the fixed size of a lobby code.
const Length = 6

var validPattern = regexp.MustCompile(fmt.Sprintf("^[%s]{%d}$", Alphabet, Length))

// Generate returns a fresh random lobby code drawn uniformly from Alphabet.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lobbycode: generate: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// Normalize uppercases and trims whitespace. It does not validate the
// result; call Valid separately if you need to reject malformed input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is exactly Length characters, all drawn from
// Alphabet, after normalization is expected to have already been applied by
// the caller (Valid itself does not normalize).
func Valid(code string) bool {
	return validPattern.MatchString(code)
}

// nonAlnum matches anything that isn't a letter or digit, used to build the
// "cleaned input" the final fallback in Extract draws from.
var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Extract pulls a lobby code out of a pasted string using, in order:
//  1. a `?code=<CODE>` query parameter, if s parses as a URL with one;
//  2. the last path segment, if it matches the lobby-code format once
//     normalized;
//  3. the last 6 alphanumeric characters of the cleaned input.
//
// Returns ("", false) if no candidate normalizes to a valid code.
func Extract(s string) (string, bool) {
	s = strings.TrimSpace(s)

	if u, err := url.Parse(s); err == nil {
		if code := u.Query().Get("code"); code != "" {
			if norm := Normalize(code); Valid(norm) {
				return norm, true
			}
		}
		if u.Path != "" {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			last := segments[len(segments)-1]
			if norm := Normalize(last); Valid(norm) {
				return norm, true
			}
		}
	}

	cleaned := nonAlnum.ReplaceAllString(s, "")
	if len(cleaned) >= Length {
		candidate := Normalize(cleaned[len(cleaned)-Length:])
		if Valid(candidate) {
			return candidate, true
		}
	}

	return "", false
}

// BuildURL renders a shareable join URL for code against baseURL (e.g.
// "https://host/arcade/"), appending it as a ?code= query parameter.
func BuildURL(baseURL, code string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Sprintf("%s?code=%s", baseURL, code)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
