package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxClientIDLength bounds client identifiers used as artifact file names.
const MaxClientIDLength = 40

// ExpiryPrecision is the resolution of persisted expiries.
const ExpiryPrecision = time.Minute

// ClientRecord is the registry entry for one provisioned VPN client.
// Activity is derived from ExpiresAt and never stored.
type ClientRecord struct {
	ID        string
	Plan      string
	ExpiresAt time.Time // always UTC
	Owner     int64     // requester that bought it; 0 for admin-created clients
}

// NewClientRecord validates and constructs a record, normalizing the expiry to UTC
// at ExpiryPrecision.
func NewClientRecord(id, plan string, expiresAt time.Time, owner int64) (*ClientRecord, error) {
	if id == "" || plan == "" || expiresAt.IsZero() {
		return nil, fmt.Errorf("client record %q: missing id, plan or expiry", id)
	}
	return &ClientRecord{ID: id, Plan: plan, ExpiresAt: expiresAt.UTC().Truncate(ExpiryPrecision), Owner: owner}, nil
}

// IsActive reports whether the record has not yet expired at now.
func (c *ClientRecord) IsActive(now time.Time) bool { return c.ExpiresAt.After(now) }

// Status classifies the record against a window.
func (c *ClientRecord) Status(now time.Time, window time.Duration) ExpiryStatus {
	return Classify(c.ExpiresAt, now, window)
}

// Artifacts are the per-client credential files produced by provisioning.
type Artifacts struct {
	ConfPath string
	QRPath   string
	// QRErr is set when the QR image could not be produced; the conf file is still usable.
	QRErr error
	// Created lists the files that did not exist before the provisioning run.
	Created []string
}

var unsafeClientChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SanitizeClientID restricts s to a filesystem-safe charset and bounds its length.
func SanitizeClientID(s string) string {
	s = unsafeClientChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > MaxClientIDLength {
		s = s[:MaxClientIDLength]
	}
	if s == "" {
		return "cliente"
	}
	return s
}

// DeriveClientID builds the identifier of a purchased client from the requester
// identity, the approval instant and the purchase id. The name part is shortened
// first so the distinguishing suffix always survives MaxClientIDLength.
func DeriveClientID(requesterName string, requesterID int64, at time.Time, purchaseID string) string {
	if strings.TrimSpace(requesterName) == "" {
		requesterName = "user"
	}
	suffix := fmt.Sprintf("_%d_%s", requesterID, at.Format("0102150405"))
	if n := len(purchaseID); n > 0 {
		suffix += "_" + strings.ToLower(purchaseID[max(0, n-4):])
	}
	suffix = unsafeClientChars.ReplaceAllString(suffix, "_")
	name := unsafeClientChars.ReplaceAllString(requesterName, "_")
	if room := MaxClientIDLength - len(suffix); len(name) > room {
		name = name[:max(1, room)]
	}
	return SanitizeClientID(name + suffix)
}
