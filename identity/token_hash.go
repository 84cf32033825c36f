// Adapted from the teacher's internal/auth/password.go: the same Argon2id
// parameters and constant-time comparison, applied to session-token secrets
// instead of user passwords. A host never keeps a bearer token in the
// clear — only its hash — so a compromised host-state dump doesn't also
// hand out every admitted player's reconnection credential.
package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash indicates a stored token hash is not in the expected
// encoded format.
var ErrInvalidHash = errors.New("identity: token hash is not in the correct format")

// ErrIncompatibleVersion indicates the encoded hash used a different Argon2
// version than this build.
var ErrIncompatibleVersion = errors.New("identity: incompatible argon2 version")

type hashParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// tokenHashParams mirrors the teacher's password Params, tuned slightly
// lighter since this runs on every join-request rather than every login.
var tokenHashParams = hashParams{
	memory:      19 * 1024,
	iterations:  2,
	parallelism: uint8(max(1, runtime.NumCPU()/2)),
	saltLength:  16,
	keyLength:   32,
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// HashToken returns an encoded Argon2id hash of token, suitable for storing
// on the host in place of the raw bearer value.
func HashToken(token SessionToken) (string, error) {
	salt := make([]byte, tokenHashParams.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("identity: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, tokenHashParams.iterations, tokenHashParams.memory, tokenHashParams.parallelism, tokenHashParams.keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, tokenHashParams.memory, tokenHashParams.iterations, tokenHashParams.parallelism, b64Salt, b64Hash)
	return encoded, nil
}

// VerifyToken reports whether candidate matches the previously stored
// encoded hash, using a constant-time comparison so timing can't leak
// partial matches.
func VerifyToken(encodedHash string, candidate SessionToken) (bool, error) {
	params, salt, hash, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	candidateHash := argon2.IDKey([]byte(candidate), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	return subtle.ConstantTimeCompare(hash, candidateHash) == 1, nil
}

func decodeHash(encoded string) (hashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return hashParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return hashParams{}, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return hashParams{}, nil, nil, ErrIncompatibleVersion
	}

	var p hashParams
	var m, t uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil {
		return hashParams{}, nil, nil, ErrInvalidHash
	}
	p.memory, p.iterations, p.parallelism = m, t, par

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return hashParams{}, nil, nil, ErrInvalidHash
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return hashParams{}, nil, nil, ErrInvalidHash
	}
	p.saltLength = uint32(len(salt))
	p.keyLength = uint32(len(hash))

	return p, salt, hash, nil
}
