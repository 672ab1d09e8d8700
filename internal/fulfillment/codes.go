package fulfillment

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomCode draws n characters uniformly from codeAlphabet. Bytes at or
// above the largest multiple of the alphabet size are rejected.
func randomCode(n int) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// newTempCode is the code sent to the customer once payment lands.
func newTempCode() (string, error) { return randomCode(8) }

// newFinalCode is 8 upper-case hex characters.
func newFinalCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// newOrderNumber is GC-<unix millis>-<6 random characters>.
func newOrderNumber(now time.Time) (string, error) {
	suffix, err := randomCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("GC-%d-%s", now.UnixMilli(), suffix), nil
}
