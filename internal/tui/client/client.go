package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/chitchat/internal/api"
	"github.com/matheus3301/chitchat/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. Every call uses the JSON codec.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) session(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, api.FullMethod(api.SessionServiceName, method), req, resp)
}

func (c *Client) chat(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, api.FullMethod(api.ChatServiceName, method), req, resp)
}

// watch opens a server stream and calls fn per message until the stream
// ends. Cancelling ctx ends the watch without error.
func watch[T any](ctx context.Context, c *Client, service, method string, fn func(*T)) error {
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, api.FullMethod(service, method))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&api.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		m := new(T)
		if err := stream.RecvMsg(m); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(m)
	}
}

// Status returns the session status.
func (c *Client) Status(ctx context.Context) (*api.Status, error) {
	resp := new(api.Status)
	if err := c.session(ctx, "GetStatus", &api.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WatchStatus calls fn with the current status and after every transition.
func (c *Client) WatchStatus(ctx context.Context, fn func(*api.Status)) error {
	return watch(ctx, c, api.SessionServiceName, "WatchStatus", fn)
}

// AttachChallenge prepares the human-verification step of phone sign-in.
func (c *Client) AttachChallenge(ctx context.Context) error {
	return c.session(ctx, "AttachChallenge", &api.Empty{}, &api.Empty{})
}

// SignInFederated runs a federated sign-in. onPrompt receives the device
// code the user must approve.
func (c *Client) SignInFederated(ctx context.Context, onPrompt func(auth.DevicePrompt)) (*auth.Identity, error) {
	var id *auth.Identity
	err := watch(ctx, c, api.SessionServiceName, "SignInFederated", func(ev *api.SignInEvent) {
		switch {
		case ev.Prompt != nil:
			if onPrompt != nil {
				onPrompt(*ev.Prompt)
			}
		case ev.Identity != nil:
			id = ev.Identity
		}
	})
	if err != nil {
		return nil, err
	}
	if id == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, auth.ErrFederatedSignIn
	}
	return id, nil
}

// BeginPhoneSignIn sends a code to phone and returns the normalized number.
func (c *Client) BeginPhoneSignIn(ctx context.Context, phone string) (string, error) {
	resp := new(api.PhoneResponse)
	if err := c.session(ctx, "BeginPhoneSignIn", &api.PhoneRequest{Phone: phone}, resp); err != nil {
		return "", err
	}
	return resp.PhoneNumber, nil
}

// ConfirmPhoneCode completes phone sign-in.
func (c *Client) ConfirmPhoneCode(ctx context.Context, code string) (*auth.Identity, error) {
	resp := new(api.IdentityResponse)
	if err := c.session(ctx, "ConfirmPhoneCode", &api.CodeRequest{Code: code}, resp); err != nil {
		return nil, err
	}
	return resp.Identity, nil
}

// AbandonVerification drops a pending phone verification.
func (c *Client) AbandonVerification(ctx context.Context) error {
	return c.session(ctx, "AbandonVerification", &api.Empty{}, &api.Empty{})
}

// SignOut signs the session out.
func (c *Client) SignOut(ctx context.Context) error {
	return c.session(ctx, "SignOut", &api.Empty{}, &api.Empty{})
}

// Messages returns the current message view.
func (c *Client) Messages(ctx context.Context) (*api.Messages, error) {
	resp := new(api.Messages)
	if err := c.chat(ctx, "ListMessages", &api.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WatchMessages calls fn with every message view.
func (c *Client) WatchMessages(ctx context.Context, fn func(*api.Messages)) error {
	return watch(ctx, c, api.ChatServiceName, "WatchMessages", fn)
}

// Roster returns the current roster.
func (c *Client) Roster(ctx context.Context) (*api.Roster, error) {
	resp := new(api.Roster)
	if err := c.chat(ctx, "ListRoster", &api.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// WatchRoster calls fn with every roster view.
func (c *Client) WatchRoster(ctx context.Context, fn func(*api.Roster)) error {
	return watch(ctx, c, api.ChatServiceName, "WatchRoster", fn)
}

// Send submits a message. filePath is optional and read by the daemon.
// An empty submission returns "" and no error.
func (c *Client) Send(ctx context.Context, body, filePath string) (string, error) {
	resp := new(api.SendResponse)
	if err := c.chat(ctx, "SendMessage", &api.SendRequest{Body: body, FilePath: filePath}, resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Summarize summarizes the given discussion text.
func (c *Client) Summarize(ctx context.Context, discussion string) (string, error) {
	resp := new(api.SummarizeResponse)
	if err := c.chat(ctx, "Summarize", &api.SummarizeRequest{Discussion: discussion}, resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// SummarizeDiscussion summarizes the messages the daemon currently holds.
func (c *Client) SummarizeDiscussion(ctx context.Context) (string, error) {
	resp := new(api.SummarizeResponse)
	if err := c.chat(ctx, "SummarizeDiscussion", &api.Empty{}, resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}
