package data

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// SourceOptions configures a source transport
type SourceOptions struct {
	URL      string
	Username string
	Password string
	PerPage  int

	NavigationTimeout time.Duration // Browser only: initial navigation
	SettleDelay       time.Duration // Browser only: wait after navigation for the challenge to clear
	RequestTimeout    time.Duration // Per fetch or probe

	ExecPath  string // Browser only: Chrome executable, empty for auto-detect
	Headless  bool
	UserAgent string
}

// DefaultSourceOptions returns the default source options
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		PerPage:           100,
		NavigationTimeout: 60 * time.Second,
		SettleDelay:       3 * time.Second,
		RequestTimeout:    30 * time.Second,
		Headless:          true,
	}
}

// wireRecord accepts ids sent either as numbers or numeric strings
type wireRecord struct {
	ID              json.Number `json:"id"`
	SourceAddr      string      `json:"source_addr"`
	DestinationAddr string      `json:"destination_addr"`
	ShortMessage    string      `json:"short_message"`
}

// decodeBatch maps a raw source response to records or a typed error.
// Elements that cannot be decoded become zero records, which the cursor gate skips.
func decodeBatch(status int, statusText string, body []byte) ([]domain.SMSRecord, error) {
	if status < 200 || status > 299 {
		return nil, &domain.SourceStatusError{Code: status, StatusText: statusText}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnexpectedShape, preview(trimmed))
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnexpectedShape, err)
	}

	records := make([]domain.SMSRecord, 0, len(raw))
	for _, item := range raw {
		var w wireRecord
		if err := json.Unmarshal(item, &w); err != nil {
			records = append(records, domain.SMSRecord{})
			continue
		}
		id, err := w.ID.Int64()
		if err != nil {
			id = 0
		}
		records = append(records, domain.SMSRecord{
			ID:              id,
			SourceAddr:      w.SourceAddr,
			DestinationAddr: w.DestinationAddr,
			ShortMessage:    w.ShortMessage,
		})
	}
	return records, nil
}

// buildSourceURL adds the paging and cursor parameters; id is omitted for cursor 0
func buildSourceURL(base string, perPage int, cursor int64) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	q := u.Query()
	q.Set("per-page", strconv.Itoa(perPage))
	if cursor > 0 {
		q.Set("id", strconv.FormatInt(cursor, 10))
	} else {
		q.Del("id")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func preview(b []byte) string {
	const limit = 120
	if len(b) == 0 {
		return "empty body"
	}
	r := []rune(string(b))
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return string(r)
}
