package gatekeeper

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/tbourn/go-request-gatekeeper/internal/domain"
)

// errNoUserHint is returned when a bearer token carries no usable user id.
var errNoUserHint = errors.New("bearer token has no user id")

// ClientID derives the counter key for r.
//
// If the Authorization header holds a bearer token whose payload names a
// user, the key is "user:<id>". Otherwise it is
// "ip:<address>:<hash(User-Agent)>".
func ClientID(r domain.Request) string {
	if uid, err := BearerUserHint(r.Authorization); err == nil {
		return "user:" + uid
	}
	return "ip:" + sourceAddress(r.RemoteAddr) + ":" + HashUserAgent(r.UserAgent)
}

// BearerUserHint peeks into the payload segment of a bearer token and returns
// the user id it claims (sub, then userId, then id).
//
// This is a best-effort identity hint for bucketing counters. It does NOT
// verify the signature and must never be used for authentication.
func BearerUserHint(authorization string) (string, error) {
	const prefix = "bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", errNoUserHint
	}
	token := strings.TrimSpace(authorization[len(prefix):])

	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return "", errNoUserHint
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return "", err
	}

	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", err
	}
	for _, k := range []string{"sub", "userId", "id"} {
		if s := claimString(claims[k]); s != "" {
			return s, nil
		}
	}
	return "", errNoUserHint
}

// decodeSegment accepts base64url (the JWT encoding) and falls back to
// standard base64, with or without padding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.TrimRight(seg, "=")
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(seg)
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// sourceAddress strips the port from a host:port remote address.
func sourceAddress(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

// HashUserAgent is a 32-bit multiply-by-31 rolling hash over the UTF-16
// code units of ua, rendered as unsigned hex. Not cryptographic.
func HashUserAgent(ua string) string {
	var h uint32
	for _, u := range utf16.Encode([]rune(ua)) {
		h = h*31 + uint32(u)
	}
	return strconv.FormatUint(uint64(h), 16)
}
