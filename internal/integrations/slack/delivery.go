// Package slackbot delivers finished reports to Slack channels.
package slackbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

var ErrDelivery = errors.New("slack delivery failed")

// DeliveryRequest is one text message bound for one channel.
type DeliveryRequest struct {
	ChannelID string
	Text      string
}

// DeliveryError carries the Slack error code (for example channel_not_found)
// next to the human-readable message.
type DeliveryError struct {
	Code    string
	Message string
}

func (e *DeliveryError) Error() string {
	if e.Message == "" || e.Message == e.Code {
		return fmt.Sprintf("slack delivery failed: %s", e.Code)
	}
	return fmt.Sprintf("slack delivery failed: %s: %s", e.Code, e.Message)
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }

// Poster is the slice of *slack.Client the sender needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Client struct {
	api Poster
	log logrus.FieldLogger
}

func New(token string, log logrus.FieldLogger, opts ...slack.Option) *Client {
	return NewWithPoster(slack.New(token, opts...), log)
}

func NewWithPoster(api Poster, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{api: api, log: log}
}

// Send posts req.Text to req.ChannelID. Any non-success comes back as a
// *DeliveryError.
func (c *Client) Send(ctx context.Context, req DeliveryRequest) error {
	if strings.TrimSpace(req.ChannelID) == "" {
		return &DeliveryError{Code: "missing_channel", Message: "no channel id configured"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return &DeliveryError{Code: "no_text", Message: "message text is empty"}
	}
	_, ts, err := c.api.PostMessageContext(ctx, req.ChannelID, slack.MsgOptionText(req.Text, false))
	if err != nil {
		derr := toDeliveryError(err)
		c.log.WithFields(logrus.Fields{"channel": req.ChannelID, "code": derr.Code}).Error("slack post failed")
		return derr
	}
	c.log.WithFields(logrus.Fields{"channel": req.ChannelID, "ts": ts}).Info("slack message posted")
	return nil
}

func toDeliveryError(err error) *DeliveryError {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return &DeliveryError{Code: resp.Err, Message: strings.Join(resp.ResponseMetadata.Messages, "; ")}
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &DeliveryError{Code: "ratelimited", Message: rl.Error()}
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return &DeliveryError{Code: fmt.Sprintf("http_%d", status.Code), Message: status.Status}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &DeliveryError{Code: "timeout", Message: err.Error()}
	}
	return &DeliveryError{Code: "transport", Message: err.Error()}
}
