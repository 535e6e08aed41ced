// Package keycodec maps arbitrary string keys to directory entry names and back.
//
// Encoding rules:
//   - '%', '/' and NUL are written as %xx (lowercase hex)
//   - a leading '.' is written as %2e, so entries never look like dotfiles
//   - the key "CVS" is written as %43VS to stay clear of the version-control directory
package keycodec

import (
	"errors"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot name a directory entry.
var ErrInvalidKey = errors.New("persist: invalid key")

const (
	hexDigits   = "0123456789abcdef"
	reservedCVS = "CVS"
)

// Normalize converts key to a filesystem-safe entry name.
func Normalize(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	if key == reservedCVS {
		return escape(key[0]) + key[1:], nil
	}

	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if needsEscape(c) || (i == 0 && c == '.') {
			b.WriteString(escape(c))
			continue
		}
		b.WriteByte(c)
	}

	name := b.String()
	if name == "." || name == ".." {
		return "", ErrInvalidKey
	}
	return name, nil
}

// Denormalize reverses Normalize. Malformed escapes are kept as they are.
func Denormalize(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}

	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '%' && i+2 < len(name) {
			hi, ok1 := unhex(name[i+1])
			lo, ok2 := unhex(name[i+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

func needsEscape(c byte) bool {
	return c == '%' || c == '/' || c == 0
}

func escape(c byte) string {
	return string([]byte{'%', hexDigits[c>>4], hexDigits[c&0x0f]})
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
