package lightning

import (
	"fmt"
	"strings"
)

// ErrorKind 错误分类
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCredentialLoad
	KindNoClientAvailable
	KindInvalidPubkey
	KindRPC
	KindNoSignatureReturned
	KindNoPubkeyRecovered
	KindWeaveIncomplete
	KindWalletBusy
	KindInvalidSignature
	KindInvalidRouteHint
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindCredentialLoad:
		return "CREDENTIAL_LOAD"
	case KindNoClientAvailable:
		return "NO_CLIENT_AVAILABLE"
	case KindInvalidPubkey:
		return "INVALID_PUBKEY"
	case KindRPC:
		return "RPC"
	case KindNoSignatureReturned:
		return "NO_SIGNATURE_RETURNED"
	case KindNoPubkeyRecovered:
		return "NO_PUBKEY_RECOVERED"
	case KindWeaveIncomplete:
		return "WEAVE_INCOMPLETE"
	case KindWalletBusy:
		return "WALLET_BUSY"
	case KindInvalidSignature:
		return "INVALID_SIGNATURE"
	case KindInvalidRouteHint:
		return "INVALID_ROUTE_HINT"
	case KindUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// Error 核心返回的类型化错误
// Upstream RPC errors are kept verbatim in Original.
type Error struct {
	Kind     ErrorKind
	Message  string
	Backend  Backend
	Original error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Kind.String(), e.Message))
	if e.Backend != BackendUnknown {
		sb.WriteString(fmt.Sprintf(" [backend: %s]", e.Backend))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Original
}

// Is 按 kind 匹配，使下方的哨兵错误可用于 errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Original == nil
}

var (
	ErrCredentialLoad      = &Error{Kind: KindCredentialLoad}
	ErrNoClientAvailable   = &Error{Kind: KindNoClientAvailable}
	ErrInvalidPubkey       = &Error{Kind: KindInvalidPubkey}
	ErrRPC                 = &Error{Kind: KindRPC}
	ErrNoSignatureReturned = &Error{Kind: KindNoSignatureReturned}
	ErrNoPubkeyRecovered   = &Error{Kind: KindNoPubkeyRecovered}
	ErrWeaveIncomplete     = &Error{Kind: KindWeaveIncomplete}
	ErrWalletBusy          = &Error{Kind: KindWalletBusy}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrInvalidRouteHint    = &Error{Kind: KindInvalidRouteHint}
	ErrUnsupported         = &Error{Kind: KindUnsupported}
)

// NewError 创建类型化错误
func NewError(kind ErrorKind, msg string, original error) *Error {
	return &Error{
		Kind:     kind,
		Message:  msg,
		Original: original,
	}
}

// NewRPCError 包装上游 RPC 错误，不做重新解释
func NewRPCError(backend Backend, method string, err error) *Error {
	return &Error{
		Kind:     KindRPC,
		Message:  method,
		Backend:  backend,
		Original: err,
	}
}
