package api

import (
	"context"

	"google.golang.org/grpc"
)

// Service names on the wire.
const (
	SessionServiceName = "chitchat.v1.SessionService"
	ChatServiceName    = "chitchat.v1.ChatService"
)

// Stream is the sending half of a server stream.
type Stream[T any] interface {
	Context() context.Context
	Send(*T) error
}

// SessionServer is implemented by SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*Status, error)
	WatchStatus(*Empty, Stream[Status]) error
	AttachChallenge(context.Context, *Empty) (*Empty, error)
	SignInFederated(*Empty, Stream[SignInEvent]) error
	BeginPhoneSignIn(context.Context, *PhoneRequest) (*PhoneResponse, error)
	ConfirmPhoneCode(context.Context, *CodeRequest) (*IdentityResponse, error)
	AbandonVerification(context.Context, *Empty) (*Empty, error)
	SignOut(context.Context, *Empty) (*Empty, error)
}

// ChatServer is implemented by ChatService.
type ChatServer interface {
	ListMessages(context.Context, *Empty) (*Messages, error)
	WatchMessages(*Empty, Stream[Messages]) error
	ListRoster(context.Context, *Empty) (*Roster, error)
	WatchRoster(*Empty, Stream[Roster]) error
	SendMessage(context.Context, *SendRequest) (*SendResponse, error)
	Summarize(context.Context, *SummarizeRequest) (*SummarizeResponse, error)
	SummarizeDiscussion(context.Context, *Empty) (*SummarizeResponse, error)
}

// SessionServiceDesc describes SessionServer for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "AttachChallenge", SessionServer.AttachChallenge),
		unary(SessionServiceName, "BeginPhoneSignIn", SessionServer.BeginPhoneSignIn),
		unary(SessionServiceName, "ConfirmPhoneCode", SessionServer.ConfirmPhoneCode),
		unary(SessionServiceName, "AbandonVerification", SessionServer.AbandonVerification),
		unary(SessionServiceName, "SignOut", SessionServer.SignOut),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchStatus", SessionServer.WatchStatus),
		serverStream("SignInFederated", SessionServer.SignInFederated),
	},
	Metadata: "chitchat/v1/session",
}

// ChatServiceDesc describes ChatServer for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChatServiceName, "ListMessages", ChatServer.ListMessages),
		unary(ChatServiceName, "ListRoster", ChatServer.ListRoster),
		unary(ChatServiceName, "SendMessage", ChatServer.SendMessage),
		unary(ChatServiceName, "Summarize", ChatServer.Summarize),
		unary(ChatServiceName, "SummarizeDiscussion", ChatServer.SummarizeDiscussion),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchMessages", ChatServer.WatchMessages),
		serverStream("WatchRoster", ChatServer.WatchRoster),
	},
	Metadata: "chitchat/v1/chat",
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

// RegisterChatServer registers srv on s.
func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// FullMethod returns the wire name of a method, e.g. "/chitchat.v1.ChatService/SendMessage".
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

func unary[S, Req, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := FullMethod(service, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(S), ctx, req.(*Req))
				if err != nil {
					return nil, StatusError(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handler)
		},
	}
}

func serverStream[S, Req, Resp any](name string, call func(S, *Req, Stream[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, ss grpc.ServerStream) error {
			in := new(Req)
			if err := ss.RecvMsg(in); err != nil {
				return err
			}
			return StatusError(call(srv.(S), in, &sender[Resp]{ss}))
		},
	}
}

type sender[T any] struct {
	grpc.ServerStream
}

func (s *sender[T]) Send(m *T) error {
	return s.SendMsg(m)
}
