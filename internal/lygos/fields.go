package lygos

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Response field aliases, most specific first. A dotted key walks nested
// objects.
var (
	paymentURLKeys    = []string{"checkoutUrl", "checkout_url", "paymentUrl", "payment_url", "redirectUrl", "redirect_url"}
	transactionIDKeys = []string{"transactionId", "id"}
	providerKeys      = []string{"provider", "channel"}
)

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// lookup resolves a dotted key path against decoded JSON.
func lookup(v any, path string) (any, bool) {
	for _, part := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return v, true
}

// firstString returns the first key whose value is a non-empty string or a
// number.
func firstString(v any, keys ...string) string {
	for _, k := range keys {
		val, ok := lookup(v, k)
		if !ok {
			continue
		}
		switch s := val.(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			return s.String()
		}
	}
	return ""
}
