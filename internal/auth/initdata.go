// Package auth verifies Telegram Mini App init data and issues session
// tokens for verified users.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxAge is how old auth_date may be.
const DefaultMaxAge = 24 * time.Hour

var (
	ErrInvalidSignature = errors.New("invalid init data signature")
	ErrAuthDateMissing  = errors.New("auth_date missing")
	ErrStaleAuth        = errors.New("auth_date too old")
	ErrMalformedUser    = errors.New("malformed user data")
)

// TelegramUser is the "user" object embedded in init data.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// InitData is a verified init data payload.
type InitData struct {
	User     TelegramUser
	AuthDate time.Time
	QueryID  string
}

// DataCheckString builds the canonical string that Telegram signs: every
// field except hash and signature, sorted by key, as key=value lines.
func DataCheckString(fields url.Values) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "hash" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range fields[k] {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// Sign returns the hex HMAC-SHA256 of the data check string keyed by
// SHA256(botToken).
func Sign(fields url.Values, botToken string) string {
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckSignature reports whether raw init data carries a valid hash for
// botToken. Malformed input is reported as invalid.
func CheckSignature(raw string, botToken string) bool {
	fields, err := url.ParseQuery(raw)
	if err != nil {
		return false
	}
	return checkFields(fields, botToken)
}

func checkFields(fields url.Values, botToken string) bool {
	hash := fields.Get("hash")
	if hash == "" || botToken == "" {
		return false
	}
	expected := Sign(fields, botToken)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(hash)))
}

// ValidateInitData checks the signature, the freshness of auth_date and the
// embedded user object.
func ValidateInitData(raw string, botToken string, now time.Time, maxAge time.Duration) (InitData, error) {
	fields, err := url.ParseQuery(raw)
	if err != nil || !checkFields(fields, botToken) {
		return InitData{}, ErrInvalidSignature
	}

	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	authDate, err := strconv.ParseInt(fields.Get("auth_date"), 10, 64)
	if err != nil || authDate <= 0 {
		return InitData{}, ErrAuthDateMissing
	}
	if now.Unix()-authDate > int64(maxAge/time.Second) {
		return InitData{}, ErrStaleAuth
	}

	userJSON := fields.Get("user")
	if userJSON == "" {
		return InitData{}, ErrMalformedUser
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil || user.ID <= 0 {
		return InitData{}, ErrMalformedUser
	}

	return InitData{
		User:     user,
		AuthDate: time.Unix(authDate, 0).UTC(),
		QueryID:  fields.Get("query_id"),
	}, nil
}
