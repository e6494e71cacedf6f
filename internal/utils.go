package internal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"
)

const (
	EmailRegexTemplate  = `^[\w.\+\.\-]+@([\w\-]+\.)+[\w]{2,}$`
	DefaultPhoneCountry = "AU"
	// ReferencePrefix prefixes every locally generated booking reference.
	ReferencePrefix = "BK-"
	// JobReferencePrefix prefixes every locally generated job reference.
	JobReferencePrefix = "JB-"
	// PortalTokenBytes is the amount of random bytes behind a portal or
	// payment request token.
	PortalTokenBytes = 32
)

var emailRegex = regexp.MustCompile(EmailRegexTemplate)

// ValidEmail reports whether email looks like an email address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// SanitizeAndVerifyPhoneNumber parses the phone using country as the default
// region (DefaultPhoneCountry when empty) and returns it in E.164 form.
func SanitizeAndVerifyPhoneNumber(phone, country string) (string, error) {
	if country == "" {
		country = DefaultPhoneCountry
	}
	pn, err := phonenumbers.Parse(phone, strings.ToUpper(country))
	if err != nil {
		return "", fmt.Errorf("invalid phone number %s: %w", phone, err)
	}
	if !phonenumbers.IsValidNumber(pn) {
		return "", fmt.Errorf("invalid phone number %s", phone)
	}
	return phonenumbers.Format(pn, phonenumbers.E164), nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandomHex returns n random bytes hex encoded.
func RandomHex(n int) string {
	return hex.EncodeToString(RandomBytes(n))
}

// NewReference returns prefix followed by 8 uppercase hex characters, e.g.
// BK-9F03A1C2.
func NewReference(prefix string) string {
	return prefix + strings.ToUpper(RandomHex(4))
}

// NewPortalToken returns a fresh token for portal and payment request links.
func NewPortalToken() string {
	return RandomHex(PortalTokenBytes)
}

// HashPassword returns the bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password too short")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var idempotencyNamespace = uuid.MustParse("6f1c2a52-8f0e-4b8e-9a43-2d1f0c7b5e11")

// IdempotencyKey derives a stable key from the given parts, used when the
// same logical operation may be retried against an external API.
func IdempotencyKey(parts ...string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(strings.Join(parts, "|"))).String()
}
