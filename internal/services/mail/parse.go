// Package mail turns raw RFC 5322 messages into models.Email and fetches them
// from an IMAP mailbox.
package mail

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"github.com/ternarybob/optout/internal/models"
)

// SnippetLength is the number of characters kept in Email.Snippet
const SnippetLength = 200

// ParseMessage reads a full message and returns the email record.
// The first text/plain and text/html inline parts become Body and HTMLBody.
func ParseMessage(id string, raw io.Reader) (*models.Email, error) {
	entity, err := message.Read(raw)
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}

	header := gomail.Header{Header: entity.Header}
	email := &models.Email{
		ID:                     id,
		Subject:                decoded(header, "Subject"),
		From:                   decoded(header, "From"),
		To:                     decoded(header, "To"),
		Date:                   header.Get("Date"),
		ListUnsubscribe:        strings.TrimSpace(header.Get("List-Unsubscribe")),
		HasListUnsubscribePost: header.Has("List-Unsubscribe-Post"),
	}
	if messageID, err := header.MessageID(); err == nil {
		email.ThreadID = messageID
	}

	var plain, html strings.Builder
	walkErr := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				return nil
			}
			return err
		}

		mediaType, _, _ := part.Header.ContentType()
		if strings.HasPrefix(mediaType, "multipart/") {
			return nil
		}
		if disposition, _, _ := part.Header.ContentDisposition(); disposition == "attachment" {
			return nil
		}

		switch {
		case mediaType == "text/html" && html.Len() == 0:
			return readInto(&html, part.Body)
		case (mediaType == "text/plain" || mediaType == "") && plain.Len() == 0:
			return readInto(&plain, part.Body)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk message %s: %w", id, walkErr)
	}

	email.Body = strings.TrimSpace(plain.String())
	email.HTMLBody = strings.TrimSpace(html.String())
	email.Snippet = snippet(email)

	return email, nil
}

func decoded(header gomail.Header, key string) string {
	value, err := header.Text(key)
	if err != nil {
		return header.Get(key)
	}
	return value
}

func readInto(dst *strings.Builder, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	dst.Write(b)
	return nil
}

// snippet is the first SnippetLength characters of whitespace-normalized
// text, taken from the plain body or the visible text of the HTML body
func snippet(email *models.Email) string {
	text := email.Body
	if text == "" && email.HTMLBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.HTMLBody)); err == nil {
			doc.Find("script, style, head").Remove()
			text = doc.Text()
		}
	}

	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= SnippetLength {
		return text
	}
	return string([]rune(text)[:SnippetLength])
}
