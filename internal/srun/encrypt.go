package srun

import (
	"strings"
	"unicode/utf8"
)

const (
	// UsernamePrefix marks an encoded username on the wire.
	UsernamePrefix = "{SRUN3}\r\n"
	// DefaultPasswordKey is the XOR key expected by deployed gateways.
	DefaultPasswordKey = "1234567890"
)

// EncryptUsername shifts every code point by four and adds the SRUN3 prefix.
func EncryptUsername(username string) string {
	var b strings.Builder
	b.Grow(len(UsernamePrefix) + len(username))
	b.WriteString(UsernamePrefix)
	for _, r := range username {
		shifted := r + 4
		if !utf8.ValidRune(shifted) {
			shifted = r
		}
		b.WriteRune(shifted)
	}
	return b.String()
}

// EncryptPassword encodes password with DefaultPasswordKey.
func EncryptPassword(password string) string {
	return EncryptPasswordWithKey(password, DefaultPasswordKey)
}

// EncryptPasswordWithKey XORs every byte with key consumed in reverse and
// splits the result into two printable nibble characters. Even positions
// emit low then high, odd positions high then low.
func EncryptPasswordWithKey(password, key string) string {
	if key == "" {
		key = DefaultPasswordKey
	}
	keyLen := len(key)
	out := make([]byte, 0, 2*len(password))
	for i := 0; i < len(password); i++ {
		x := password[i] ^ key[keyLen-1-(i%keyLen)]
		low := (x & 0x0f) + 0x36
		high := ((x >> 4) & 0x0f) + 0x63
		if i%2 == 0 {
			out = append(out, low, high)
		} else {
			out = append(out, high, low)
		}
	}
	return string(out)
}

const upperHex = "0123456789ABCDEF"

// URLEncode percent-encodes every byte outside [A-Za-z0-9._~-].
func URLEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	default:
		return false
	}
}
