// Package txref normalizes the raw values wallet extensions return from a
// send call into one canonical transaction id. Wallet responses are not
// stable: the same extension may hand back a bare id string, a URL-encoded
// JSON blob, or an object keyed by any of several id field names. This is
// the single seam where that non-determinism is absorbed; everything
// downstream sees one id format.
package txref

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/kaspay/kaspay/types"
)

// Id field names probed on object responses, in priority order.
var idKeys = []string{"id", "txId", "txid", "hash"}

var (
	kaspaTxRef = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	evmTxRef   = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
)

// Normalize extracts the canonical transaction id from a raw send response
// produced by the given method's wallet.
func Normalize(raw any, method types.Method) (string, error) {
	switch v := raw.(type) {
	case string:
		return fromString(v, method)
	case []byte:
		return fromString(string(v), method)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return "", malformed(fmt.Sprintf("undecodable raw message: %v", err))
		}
		return Normalize(decoded, method)
	case map[string]any:
		return fromObject(v, method)
	case fmt.Stringer:
		return fromString(v.String(), method)
	case nil:
		return "", malformed("wallet returned no transaction reference")
	default:
		return "", malformed(fmt.Sprintf("unexpected response type %T", raw))
	}
}

func fromString(s string, method types.Method) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", malformed("empty transaction reference")
	}

	candidate := s
	if decoded, err := url.QueryUnescape(s); err == nil {
		candidate = decoded
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		return fromObject(obj, method)
	}

	return validated(candidate, method)
}

func fromObject(obj map[string]any, method types.Method) (string, error) {
	for _, key := range idKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		id, ok := v.(string)
		if !ok {
			return "", malformed(fmt.Sprintf("field %q is not a string", key))
		}
		return validated(id, method)
	}
	return "", malformed("response object carries no id field")
}

func validated(id string, method types.Method) (string, error) {
	id = strings.TrimSpace(id)
	switch method {
	case types.MethodKaspa:
		if !kaspaTxRef.MatchString(id) {
			return "", malformed(fmt.Sprintf("%q is not a 64-hex kaspa transaction id", id))
		}
	case types.MethodEVM:
		if !evmTxRef.MatchString(id) {
			return "", malformed(fmt.Sprintf("%q is not a 0x-prefixed transaction hash", id))
		}
	default:
		return "", malformed(fmt.Sprintf("unknown payment method %q", method))
	}
	return id, nil
}

func malformed(msg string) error {
	return &types.Error{
		Code:    types.ErrMalformedTxRef,
		Message: msg,
	}
}
