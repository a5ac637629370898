// Package gmailclient wraps the Gmail API as the assistant's mail-service
// collaborator.
//
// Every mutating call is idempotent from the caller's perspective:
// re-applying a label is a no-op, trashing a trashed message is a no-op,
// and draft creation is guarded upstream by the processed-set. Errors are
// classified for the retry policy: quota and server errors are
// transient, everything else is permanent.
package gmailclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ignite/inbox-assistant/internal/pkg/retry"
)

const user = "me"

// Pacer spaces consecutive API calls. *ratelimit.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Client is a thin wrapper over the Gmail API service.
type Client struct {
	srv  *gmail.Service
	pace Pacer // nil disables pacing of per-message gets
}

// New builds a Gmail client from stored OAuth credentials. The token must
// already exist (the interactive consent flow is a separate setup step);
// a missing or expired-beyond-refresh token is a startup error.
func New(ctx context.Context, credentialsPath, tokenPath string) (*Client, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailModifyScope, gmail.GmailComposeScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load oauth token (run the auth setup first): %w", err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{srv: srv}, nil
}

// NewWithService wraps an existing Gmail service (tests, custom transports).
func NewWithService(srv *gmail.Service) *Client { return &Client{srv: srv} }

// SetPacer makes FetchBatch wait out the inter-call delay before each
// per-message get. Without it only the batch call itself is paced by the
// caller and the get volume inside a batch runs unthrottled.
func (c *Client) SetPacer(p Pacer) { c.pace = p }

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// FetchBatch lists up to limit full messages received after since,
// excluding sent mail and drafts. cursor is the Gmail page token; the
// returned cursor is empty on the last page. Ordering is the service's
// newest-first contract and is not reordered here.
func (c *Client) FetchBatch(ctx context.Context, limit int64, since time.Time, cursor string) ([]*gmail.Message, string, error) {
	query := fmt.Sprintf("after:%s -in:sent -in:draft", since.Format("2006/01/02"))

	call := c.srv.Users.Messages.List(user).Q(query).MaxResults(limit).Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	res, err := call.Do()
	if err != nil {
		return nil, "", classify(fmt.Errorf("list messages: %w", err))
	}

	msgs := make([]*gmail.Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		if c.pace != nil {
			if err := c.pace.Wait(ctx); err != nil {
				return msgs, "", err
			}
		}
		full, err := c.srv.Users.Messages.Get(user, m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return msgs, "", classify(fmt.Errorf("get message %s: %w", m.Id, err))
		}
		msgs = append(msgs, full)
	}
	return msgs, res.NextPageToken, nil
}

// ApplyLabel adds one label to a message. Applying an already-present
// label is a no-op on the Gmail side.
func (c *Client) ApplyLabel(ctx context.Context, messageID, labelID string) error {
	_, err := c.srv.Users.Messages.Modify(user, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds: []string{labelID},
	}).Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("apply label %s to %s: %w", labelID, messageID, err))
	}
	return nil
}

// Delete moves a message to trash. Gmail keeps trashed mail for 30 days,
// so this is the recoverable form of deletion.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	_, err := c.srv.Users.Messages.Trash(user, messageID).Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("trash message %s: %w", messageID, err))
	}
	return nil
}

// CreateDraft creates a reply draft attached to the message's thread and
// returns the Gmail draft ID. It never sends.
func (c *Client) CreateDraft(ctx context.Context, threadID, to, subject, body string) (string, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)

	d, err := c.srv.Users.Drafts.Create(user, &gmail.Draft{
		Message: &gmail.Message{
			ThreadId: threadID,
			Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify(fmt.Errorf("create draft: %w", err))
	}
	return d.Id, nil
}

// classify marks non-retryable API errors as permanent. Rate limiting
// (429, and 403 with a rate reason) and server errors stay retryable.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		// Network-level failure; let the retry policy handle it.
		return err
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return err
	case http.StatusForbidden:
		for _, e := range apiErr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return err
			}
		}
		return retry.Permanent(err)
	default:
		return retry.Permanent(err)
	}
}
