package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chitchat/internal/attachment"
	"github.com/matheus3301/chitchat/internal/auth"
	"github.com/matheus3301/chitchat/internal/outbox"
	"github.com/matheus3301/chitchat/internal/stream"
	"github.com/matheus3301/chitchat/internal/summarize"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Kind is the user-facing category of a failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindTransport     Kind = "transport"
	KindSummarization Kind = "summarization"
	KindContract      Kind = "contract"
	KindCanceled      Kind = "canceled"
	KindInternal      Kind = "internal"
)

// ErrBadRequest marks a malformed RPC request.
var ErrBadRequest = errors.New("bad request")

// Classify maps err to its category. Order matters: phone input errors are
// wrapped in auth.ErrVerificationInit but are still validation failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, auth.ErrInvalidPhone),
		errors.Is(err, auth.ErrInvalidCodeFormat),
		errors.Is(err, outbox.ErrFileTooLarge),
		errors.Is(err, attachment.ErrTooLarge),
		errors.Is(err, summarize.ErrInvalidInput):
		return KindValidation
	case errors.Is(err, auth.ErrNoActiveChallenge),
		errors.Is(err, auth.ErrAlreadySubscribed),
		errors.Is(err, outbox.ErrSendInFlight):
		return KindContract
	case errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrVerificationRejected),
		errors.Is(err, auth.ErrVerificationInit),
		errors.Is(err, auth.ErrChallengeNotReady),
		errors.Is(err, auth.ErrFederatedSignIn):
		return KindAuth
	case errors.Is(err, outbox.ErrSendFailed),
		errors.Is(err, outbox.ErrUploadFailed),
		stream.IsStreamError(err):
		return KindTransport
	case errors.Is(err, summarize.ErrSummarizationFailed):
		return KindSummarization
	}
	return KindInternal
}

// Retryable reports whether the user may simply try the same action again.
func (k Kind) Retryable() bool {
	return k == KindAuth || k == KindTransport || k == KindSummarization
}

func (k Kind) code() codes.Code {
	switch k {
	case KindValidation:
		return codes.InvalidArgument
	case KindAuth:
		return codes.Unauthenticated
	case KindContract:
		return codes.FailedPrecondition
	case KindTransport:
		return codes.Unavailable
	case KindCanceled:
		return codes.Canceled
	}
	return codes.Internal
}

// StatusError converts err into a gRPC status error whose message is "kind: text".
// A nil err returns nil.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	k := Classify(err)
	return grpcstatus.Error(k.code(), fmt.Sprintf("%s: %s", k, err))
}

// Describe splits an error returned by a chitchat RPC into its category and a
// human-readable message. Errors that did not come from the daemon are
// classified locally.
func Describe(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return Classify(err), err.Error()
	}
	if kind, msg, found := strings.Cut(st.Message(), ": "); found {
		switch k := Kind(kind); k {
		case KindValidation, KindAuth, KindTransport, KindSummarization, KindContract, KindCanceled, KindInternal:
			return k, msg
		}
	}
	switch st.Code() {
	case codes.Unavailable:
		return KindTransport, st.Message()
	case codes.Canceled, codes.DeadlineExceeded:
		return KindCanceled, st.Message()
	}
	return KindInternal, st.Message()
}
