package models

import (
	"net/mail"
	"strings"
)

// Email is a fully fetched message as handed to the unsubscribe engine.
// It is treated as immutable once constructed by a mail source.
type Email struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	To       string `json:"to"`
	Date     string `json:"date"`
	Body     string `json:"body"`      // text/plain content
	HTMLBody string `json:"html_body"` // text/html content
	Snippet  string `json:"snippet"`

	// ListUnsubscribe is the raw List-Unsubscribe header (RFC 2369), empty when absent
	ListUnsubscribe string `json:"list_unsubscribe,omitempty"`
	// HasListUnsubscribePost is set when a List-Unsubscribe-Post header (RFC 8058) is present
	HasListUnsubscribePost bool `json:"has_list_unsubscribe_post"`
}

// SenderAddress returns the lower-cased sender address. Display names are
// stripped when the From header parses; otherwise the raw header is returned.
func (e *Email) SenderAddress() string {
	return addressOf(e.From)
}

// SenderDomain returns the domain part of the sender address, or "" if none.
func (e *Email) SenderDomain() string {
	addr := e.SenderAddress()
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.TrimRight(addr[at+1:], ">")
}

// RecipientAddress returns the address used for one-click unsubscribe
// bodies: the first To address, falling back to the sender.
func (e *Email) RecipientAddress() string {
	if to := addressOf(e.To); to != "" {
		return to
	}
	return e.SenderAddress()
}

func addressOf(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if list, err := mail.ParseAddressList(header); err == nil && len(list) > 0 {
		return strings.ToLower(list[0].Address)
	}
	return strings.ToLower(header)
}
