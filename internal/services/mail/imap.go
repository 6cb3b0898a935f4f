package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/common"
	"github.com/ternarybob/optout/internal/models"
)

const dialTimeout = 30 * time.Second

// IMAPSource fetches unseen messages from a mailbox. Messages are read with
// BODY.PEEK so fetching never marks them as seen.
type IMAPSource struct {
	config common.IMAPConfig
	logger arbor.ILogger
}

// NewIMAPSource creates a source for the given mailbox credentials.
// {key} references are expected to be resolved by config loading.
func NewIMAPSource(config common.IMAPConfig, logger arbor.ILogger) *IMAPSource {
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	if config.Port == 0 {
		config.Port = 993
	}
	return &IMAPSource{config: config, logger: logger}
}

// IsConfigured checks the minimum required settings
func (s *IMAPSource) IsConfigured() bool {
	if s.config.Host == "" || s.config.Username == "" {
		return false
	}
	if s.usesOAuth() {
		return s.config.OAuthClientID != "" && s.config.OAuthRefreshToken != ""
	}
	return s.config.Password != ""
}

// Fetch returns up to limit unseen messages, newest first. A non-empty
// query restricts the search to messages whose subject contains it.
func (s *IMAPSource) Fetch(ctx context.Context, query string, limit int) ([]*models.Email, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("IMAP not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	// go-imap v1 has no context support; closing the connection unblocks it
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := s.authenticate(ctx, c); err != nil {
		return nil, err
	}

	mbox, err := c.Select(s.config.Mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", s.config.Mailbox, err)
	}
	if mbox.Messages == 0 {
		s.logger.Debug().Str("mailbox", s.config.Mailbox).Msg("No messages in mailbox")
		return []*models.Email{}, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if query != "" {
		criteria.Header.Add("Subject", query)
	}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		s.logger.Debug().Msg("No unseen messages")
		return []*models.Email{}, nil
	}

	// Newest first
	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] > seqNums[j] })
	if limit > 0 && len(seqNums) > limit {
		seqNums = seqNums[:limit]
	}

	s.logger.Debug().Int("count", len(seqNums)).Msg("Fetching unseen messages")

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, messages)
	}()

	bySeq := make(map[uint32]*models.Email, len(seqNums))
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			s.logger.Warn().Uint32("seq", msg.SeqNum).Msg("Message has no body section")
			continue
		}

		raw := new(bytes.Buffer)
		if _, err := raw.ReadFrom(body); err != nil {
			s.logger.Warn().Err(err).Uint32("seq", msg.SeqNum).Msg("Failed to read message body")
			continue
		}

		email, err := ParseMessage(strconv.FormatUint(uint64(msg.Uid), 10), raw)
		if err != nil {
			s.logger.Warn().Err(err).Uint32("seq", msg.SeqNum).Msg("Failed to parse message")
			continue
		}
		bySeq[msg.SeqNum] = email
	}

	if err := <-done; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	emails := make([]*models.Email, 0, len(bySeq))
	for _, seq := range seqNums {
		if email, ok := bySeq[seq]; ok {
			emails = append(emails, email)
		}
	}

	s.logger.Info().
		Str("mailbox", s.config.Mailbox).
		Int("fetched", len(emails)).
		Msg("Fetched emails")

	return emails, nil
}

func (s *IMAPSource) connect() (*client.Client, error) {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		c   *client.Client
		err error
	)
	if s.config.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, nil)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	return c, nil
}
