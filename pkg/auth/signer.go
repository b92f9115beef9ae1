// Package auth implements master-key request signing for the document
// service's REST API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenVersion is the signature scheme version sent in every token.
const TokenVersion = "1.0"

// APIVersion is the service API version this client speaks.
const APIVersion = "2018-12-31"

// Credential holds the decoded master-key material used to sign requests.
// It is derived once per session and must never be logged or serialized.
type Credential struct {
	key []byte
}

// NewCredential decodes a base64-encoded master key. A key that does not
// decode is a configuration error, not a retryable condition.
func NewCredential(masterKey string) (*Credential, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key is required")
	}

	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}

	return &Credential{key: key}, nil
}

// Headers carries the three authentication headers for a single request
// attempt. Date is byte-identical to the value signed over; reusing Headers
// across attempts would replay a stale signing window.
type Headers struct {
	Authorization string
	Date          string
	Version       string
}

// Sign produces the authentication headers for one request attempt.
//
// The canonical string is:
//
//	lower(verb) "\n" lower(resourceType) "\n" resourceLink "\n" lower(date) "\n" "\n"
//
// where date is the HTTP-date form of now. The HMAC-SHA256 digest of that
// string is base64-encoded and wrapped as type=master&ver=1.0&sig=<digest>,
// URL-escaped for the Authorization header.
func (c *Credential) Sign(verb, resourceType, resourceLink string, now time.Time) Headers {
	date := strings.ToLower(now.UTC().Format(http.TimeFormat))

	payload := strings.ToLower(verb) + "\n" +
		strings.ToLower(resourceType) + "\n" +
		resourceLink + "\n" +
		date + "\n" +
		"\n"

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payload))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return Headers{
		Authorization: url.QueryEscape("type=master&ver=" + TokenVersion + "&sig=" + sig),
		Date:          date,
		Version:       APIVersion,
	}
}
