package domain

import (
	"strings"
	"unicode"
)

// SMSRecord represents one inbound message returned by the SMS gateway
type SMSRecord struct {
	ID              int64  `json:"id"`
	SourceAddr      string `json:"source_addr"`
	DestinationAddr string `json:"destination_addr"`
	ShortMessage    string `json:"short_message"`
}

// Source returns the origin address, or a placeholder when the gateway sent none
func (r *SMSRecord) Source() string {
	if r.SourceAddr == "" {
		return "Unknown Source"
	}
	return r.SourceAddr
}

// Destination returns the destination address, or a placeholder when the gateway sent none
func (r *SMSRecord) Destination() string {
	if r.DestinationAddr == "" {
		return "Unknown Destination"
	}
	return r.DestinationAddr
}

// Body returns the message payload with control characters removed
func (r *SMSRecord) Body() string {
	if r.ShortMessage == "" {
		return "No content"
	}
	return StripControl(r.ShortMessage)
}

// IsNewerThan reports whether the record passes the cursor gate
func (r *SMSRecord) IsNewerThan(cursor int64) bool {
	return r.ID > cursor
}

// StripControl removes NUL and other control characters, keeping line breaks and tabs.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
