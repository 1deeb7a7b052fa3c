package model

// LoginResult is the gateway verdict for an auth request.
type LoginResult string

const (
	ResultSuccess       LoginResult = "success"
	ResultAlreadyOnline LoginResult = "already_online"
	ResultFailed        LoginResult = "failed"
)

// FailureKind classifies why an operation did not succeed.
type FailureKind string

const (
	KindNone      FailureKind = ""
	KindTransport FailureKind = "transport"
	KindProtocol  FailureKind = "protocol"
	KindAuth      FailureKind = "auth"
	KindConfig    FailureKind = "config"
)

// LoginOutcome is the result of a login or logout request.
type LoginOutcome struct {
	Result  LoginResult `json:"result"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Kind    FailureKind `json:"kind,omitempty"`
}

// IsSuccess is true for success and already-online results.
func (o LoginOutcome) IsSuccess() bool {
	return o.Result == ResultSuccess || o.Result == ResultAlreadyOnline
}

// Failed builds a failed outcome of the given kind.
func Failed(kind FailureKind, message string) LoginOutcome {
	return LoginOutcome{Result: ResultFailed, Message: message, Kind: kind}
}
