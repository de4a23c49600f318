// Package hash implements the content digest used throughout Spread to name
// files, directory objects, and archives. A Hash pairs a fixed-size digest
// with the declared byte size of the data it names, so that a hash carries
// enough information to validate a stream without a separate stat call.
package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/eknkc/basex"
	"github.com/pkg/errors"
)

// shardAlphabet is the base62 alphabet used for shard directory names.
const shardAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// shardEncoding renders the first few digest bytes of a hash into a short,
// filesystem-friendly prefix used to shard content-addressed storage
// directories (so a cache with many entries doesn't put them all in one
// directory).
var shardEncoding *basex.Encoding

func init() {
	encoding, err := basex.NewEncoding(shardAlphabet)
	if err != nil {
		panic("unable to initialize shard encoder")
	}
	shardEncoding = encoding
}

// Size is the number of digest bytes produced by New's underlying hash
// function.
const Size = sha256.Size

// Hash is a content digest plus the declared byte size of the data it names.
// The zero value is the null hash (IsNull reports true for it). Hash is
// comparable and may be used as a map key.
type Hash struct {
	digest [Size]byte
	isSet  bool
	length uint64
}

// New returns a hash.Hash suitable for streaming content through; its Sum
// output, combined with the number of bytes written, produces a Hash via
// FromDigest.
func New() hash.Hash {
	return sha256.New()
}

// Sum computes the Hash of data in one step.
func Sum(data []byte) Hash {
	digest := sha256.Sum256(data)
	return Hash{digest: digest, isSet: true, length: uint64(len(data))}
}

// FromDigest builds a Hash from a digest already produced by a hash.Hash
// returned by New, together with the number of bytes that were written to
// produce it. It fails if digest is not exactly Size bytes long.
func FromDigest(digest []byte, length uint64) (Hash, error) {
	if len(digest) != Size {
		return Hash{}, errors.Errorf("digest has incorrect length (%d != %d)", len(digest), Size)
	}
	var h Hash
	copy(h.digest[:], digest)
	h.isSet = true
	h.length = length
	return h, nil
}

// Null is the zero-value "unknown" hash. IsNull is equivalent to comparing
// against Null.
var Null = Hash{}

// IsNull reports whether h is the null (unknown) hash.
func (h Hash) IsNull() bool {
	return !h.isSet
}

// IsSet is the negation of IsNull.
func (h Hash) IsSet() bool {
	return h.isSet
}

// Size returns the declared byte size of the data named by h. It is
// meaningless (and always 0) for the null hash.
func (h Hash) Size() uint64 {
	return h.length
}

// Digest returns a copy of the raw digest bytes.
func (h Hash) Digest() []byte {
	out := make([]byte, Size)
	copy(out, h.digest[:])
	return out
}

// Equal reports whether h and other name the same content: equal digest and
// equal declared size. Two null hashes are equal to each other.
func (h Hash) Equal(other Hash) bool {
	return h.isSet == other.isSet && h.length == other.length && h.digest == other.digest
}

// Less provides a total, deterministic order over hashes (digest first, then
// size); the null hash sorts before every set hash.
func (h Hash) Less(other Hash) bool {
	if !h.isSet && !other.isSet {
		return false
	}
	if !h.isSet {
		return true
	}
	if !other.isSet {
		return false
	}
	if c := bytes.Compare(h.digest[:], other.digest[:]); c != 0 {
		return c < 0
	}
	return h.length < other.length
}

// String returns the canonical textual form of h: hex digest, a colon, and
// the declared size in decimal. The null hash renders as "null".
func (h Hash) String() string {
	if h.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%s:%d", hex.EncodeToString(h.digest[:]), h.length)
}

// FileName renders h as a filesystem-safe name (hex digest only, no colon or
// size suffix), suitable for naming a file within a content-addressed store
// on every supported platform, including Windows, where ':' is reserved.
func (h Hash) FileName() string {
	return hex.EncodeToString(h.digest[:])
}

// Parse parses the canonical textual form produced by String.
func Parse(text string) (Hash, error) {
	if text == "null" || text == "" {
		return Null, nil
	}
	parts := strings.SplitN(text, ":", 2)
	if len(parts) != 2 {
		return Hash{}, errors.Errorf("malformed hash text: %q", text)
	}
	digest, err := hex.DecodeString(parts[0])
	if err != nil {
		return Hash{}, errors.Wrap(err, "unable to decode hash digest")
	}
	length, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Hash{}, errors.Wrap(err, "unable to decode hash size")
	}
	return FromDigest(digest, length)
}

// MatchesLength reports whether the declared size of h (when set) agrees
// with length. The cache index uses this to detect a caller-supplied hash
// whose declared size disagrees with what's actually on disk.
func (h Hash) MatchesLength(length uint64) bool {
	if h.IsNull() {
		return true
	}
	return h.length == length
}

// shardPrefixBytes is the number of leading digest bytes encoded into a
// ShardPrefix.
const shardPrefixBytes = 2

// ShardPrefix renders the first few digest bytes of h into a short,
// filesystem-friendly directory name, so that a content-addressed store with
// many entries spreads them across subdirectories instead of putting them
// all in one. The null hash has no shard prefix.
func (h Hash) ShardPrefix() string {
	if h.IsNull() {
		return ""
	}
	return shardEncoding.Encode(h.digest[:shardPrefixBytes])
}
