package domain

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// HashFunc names the fixed-width hash used to place names and keys
// on the identifier circle.
type HashFunc string

const (
	HashXX     HashFunc = "xxhash"
	HashMurmur HashFunc = "murmur3"
	HashSHA1   HashFunc = "sha1"
)

// digitBits is the width of one routing digit (hexadecimal).
const digitBits = 4

// -------------------------------
// Space
// -------------------------------

// Space defines the identifier space shared by every topology.
//
// The identifier space is the set of integers in [0, 2^Bits). Bits is
// capped at 64 so that identifiers fit a machine word; all arithmetic
// is performed modulo 2^Bits by masking.
//
// Fields:
//
//   - Bits: total number of bits in the identifier space
//     (64 for production-like runs, 4 or 8 for hand-checked tests).
//
//   - Digits: number of hexadecimal digits needed to render an
//     identifier (ceil(Bits / 4)). Prefix routing compares these digits.
//
//   - Hash: the non-cryptographic hash used by NewIdFromString.
type Space struct {
	Bits   int      // Number of bits in the identifier space
	Digits int      // Fixed hex width of a rendered identifier
	Hash   HashFunc // Hash applied to names and keys
	mask   uint64
}

// NewSpace initializes a new identifier space.
//
// Parameters:
//   - b: number of bits in the identifier space. Must be in [1, 64].
//   - hash: hash function name; empty selects xxhash.
//
// Returns an error if one or more parameters are invalid.
func NewSpace(b int, hash HashFunc) (Space, error) {
	if b <= 0 || b > 64 {
		return Space{}, fmt.Errorf("%w: identifier bits %d (must be in [1, 64])", ErrInvalidConfig, b)
	}
	if hash == "" {
		hash = HashXX
	}
	switch hash {
	case HashXX, HashMurmur, HashSHA1:
	default:
		return Space{}, fmt.Errorf("%w: unknown hash function %q", ErrInvalidConfig, hash)
	}
	mask := ^uint64(0)
	if b < 64 {
		mask = (uint64(1) << uint(b)) - 1
	}
	return Space{
		Bits:   b,
		Digits: (b + digitBits - 1) / digitBits,
		Hash:   hash,
		mask:   mask,
	}, nil
}

// MustSpace is NewSpace for constant parameters; it panics on error.
func MustSpace(b int, hash HashFunc) Space {
	sp, err := NewSpace(b, hash)
	if err != nil {
		panic(err)
	}
	return sp
}

// Mask returns 2^Bits - 1.
func (sp Space) Mask() uint64 {
	return sp.mask
}

// Half returns M/2, the offset of the diametrically opposite point.
func (sp Space) Half() uint64 {
	return uint64(1) << uint(sp.Bits-1)
}

// -------------------------------
// ID type and methods
// -------------------------------

// ID is a point on the identifier circle, always in [0, 2^Bits).
//
// Callers never pick identifiers directly: they are produced by hashing
// a node name or a record key through NewIdFromString.
type ID uint64

// NewIdFromString derives an identifier from the given string.
//
// The digest of the configured hash is reduced to the low Bits bits,
// which keeps the result uniformly distributed in [0, 2^Bits).
func (sp Space) NewIdFromString(s string) ID {
	var h uint64
	switch sp.Hash {
	case HashMurmur:
		h = murmur3.Sum64([]byte(s))
	case HashSHA1:
		sum := sha1.Sum([]byte(s))
		h = binary.BigEndian.Uint64(sum[:8])
	default:
		h = xxhash.Sum64String(s)
	}
	return ID(h & sp.mask)
}

// IsValidID verifies that id lies inside the identifier space.
func (sp Space) IsValidID(id ID) error {
	if uint64(id)&^sp.mask != 0 {
		return fmt.Errorf("%w: %d exceeds %d-bit space", ErrInvalidID, uint64(id), sp.Bits)
	}
	return nil
}

// AddMod computes (a + d) modulo 2^Bits.
func (sp Space) AddMod(a ID, d uint64) ID {
	return ID((uint64(a) + d) & sp.mask)
}

// SubMod computes (a - d) modulo 2^Bits.
func (sp Space) SubMod(a ID, d uint64) ID {
	return ID((uint64(a) - d) & sp.mask)
}

// FingerStart returns (id + 2^i) mod 2^Bits, the start of the i-th finger interval.
func (sp Space) FingerStart(id ID, i int) ID {
	return sp.AddMod(id, uint64(1)<<uint(i))
}

// Opposite returns the point diametrically opposite id on the circle.
func (sp Space) Opposite(id ID) ID {
	return sp.AddMod(id, sp.Half())
}

// ToHexString renders id as a zero-padded lowercase hex string of
// exactly Digits characters. Prefix routing compares these strings.
func (sp Space) ToHexString(id ID) string {
	return fmt.Sprintf("%0*x", sp.Digits, uint64(id))
}

// FromHexString parses a hexadecimal string into an ID, accepting an
// optional "0x" prefix and rejecting values outside the space.
func (sp Space) FromHexString(s string) (ID, error) {
	str := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if str == "" {
		return 0, fmt.Errorf("%w: empty hex string", ErrInvalidID)
	}
	v, err := strconv.ParseUint(str, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	id := ID(v)
	if err := sp.IsValidID(id); err != nil {
		return 0, err
	}
	return id, nil
}

// DigitAt returns the hex digit of id at position pos, where position
// 0 is the most significant digit of the Digits-wide rendering.
func (sp Space) DigitAt(id ID, pos int) int {
	shift := uint((sp.Digits - 1 - pos) * digitBits)
	return int((uint64(id) >> shift) & 0xF)
}

// SharedPrefixLen returns how many leading hex digits a and b share.
// Equal identifiers share all Digits digits.
func (sp Space) SharedPrefixLen(a, b ID) int {
	diff := uint64(a ^ b)
	if diff == 0 {
		return sp.Digits
	}
	// Width of the rendering in bits, counted from the most significant digit.
	width := sp.Digits * digitBits
	lead := bits.LeadingZeros64(diff) - (64 - width)
	return lead / digitBits
}

// ToHexString returns the identifier with a "0x" prefix, unpadded.
// Use Space.ToHexString for the fixed-width rendering.
func (x ID) ToHexString() string {
	return "0x" + strconv.FormatUint(uint64(x), 16)
}

// InRange reports whether k lies on the clockwise arc that starts
// strictly after a and ends at b, inclusive of b when inclusiveRight.
//
// Interval semantics:
//   - a < b: the arc is linear, (a, b] or (a, b).
//   - a > b: the arc wraps through zero and covers k > a or k <= b (k < b).
//   - a == b: (a, a] is every point except a itself; (a, a) is empty.
//
// Successor search and finger selection both depend on this predicate.
func InRange(k, a, b ID, inclusiveRight bool) bool {
	switch {
	case a < b:
		if inclusiveRight {
			return a < k && k <= b
		}
		return a < k && k < b
	case a > b:
		if inclusiveRight {
			return a < k || k <= b
		}
		return a < k || k < b
	default:
		return inclusiveRight && k != a
	}
}

// Distance returns the absolute numeric (non-circular) distance between
// two identifiers, the metric used by leaf sets.
func Distance(a, b ID) uint64 {
	if a > b {
		return uint64(a - b)
	}
	return uint64(b - a)
}
