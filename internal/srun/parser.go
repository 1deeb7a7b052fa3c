package srun

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/micro-ha/srun-guard/internal/model"
)

// Operation names the request that produced a response body.
type Operation string

const (
	OpLogin  Operation = "login"
	OpLogout Operation = "logout"
	OpStatus Operation = "status"
)

const (
	tokenNotOnline     = "not_online"
	tokenLoginOK       = "login_ok"
	tokenAlreadyOnline = "already_online"
	tokenLogoutOK      = "logout_ok"

	// rawMessageLimit bounds how long a failure body may be before it is
	// replaced by a generic message.
	rawMessageLimit = 200
)

var (
	jsonpPattern = regexp.MustCompile(`(?s)^[A-Za-z_$][\w$.]*\s*\((.*)\)\s*;?$`)
	codePattern  = regexp.MustCompile(`E\d{3,}`)
)

// ParseStatus turns a status-endpoint body into a NetworkStatus. Unknown
// shapes resolve to offline.
func ParseStatus(body string) model.NetworkStatus {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || strings.Contains(trimmed, tokenNotOnline) {
		return model.Offline()
	}
	if obj, ok := decodeObject(trimmed); ok {
		return statusFromObject(obj)
	}
	return statusFromFields(trimmed)
}

func statusFromObject(obj map[string]any) model.NetworkStatus {
	if signalsNotOnline(stringField(obj, "error")) {
		return model.Offline()
	}
	username := stringField(obj, "user_name")
	ip := stringField(obj, "online_ip")
	if username == "" && ip == "" {
		return model.Offline()
	}
	return model.Online(username, ip, uintField(obj, "sum_bytes"), uintField(obj, "sum_seconds"))
}

// statusFromFields reads the legacy username,seconds,ip,bytes,... layout.
func statusFromFields(body string) model.NetworkStatus {
	parts := strings.Split(body, ",")
	if len(parts) < 4 {
		return model.Offline()
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return model.Online(parts[0], parts[2], parseUint(parts[3]), parseUint(parts[1]))
}

func signalsNotOnline(errorValue string) bool {
	value := strings.ToLower(strings.TrimSpace(errorValue))
	return strings.Contains(value, tokenNotOnline) || strings.Contains(value, "not online")
}

// ParseAuth turns a login or logout body into a LoginOutcome. Unknown
// shapes resolve to failed.
func ParseAuth(op Operation, body string) model.LoginOutcome {
	trimmed := strings.TrimSpace(body)
	obj, isObject := decodeObject(trimmed)

	switch op {
	case OpLogout:
		if strings.Contains(trimmed, tokenLogoutOK) {
			return model.LoginOutcome{Result: model.ResultSuccess, Message: "logout succeeded"}
		}
		if strings.Contains(trimmed, tokenNotOnline) {
			return model.LoginOutcome{Result: model.ResultSuccess, Message: "already offline"}
		}
	default:
		if strings.Contains(trimmed, tokenLoginOK) {
			return model.LoginOutcome{Result: model.ResultSuccess, Message: "login succeeded"}
		}
		if strings.Contains(trimmed, tokenAlreadyOnline) {
			return model.LoginOutcome{Result: model.ResultAlreadyOnline, Message: "already online"}
		}
	}
	if isObject && acceptedObject(obj) {
		return model.LoginOutcome{Result: model.ResultSuccess, Message: string(op) + " succeeded"}
	}
	return authFailure(op, trimmed, obj)
}

// acceptedObject recognises JSON envelopes that report success without a
// plain-text token.
func acceptedObject(obj map[string]any) bool {
	return strings.EqualFold(stringField(obj, "res"), "ok") ||
		strings.EqualFold(stringField(obj, "error"), "ok") ||
		stringField(obj, "result") == "1"
}

func authFailure(op Operation, body string, obj map[string]any) model.LoginOutcome {
	if code := codePattern.FindString(body); code != "" {
		out := model.Failed(model.KindAuth, "gateway error "+code)
		out.Code = code
		return out
	}
	if obj != nil {
		for _, key := range []string{"error_msg", "error"} {
			if message := stringField(obj, key); message != "" && !strings.EqualFold(message, "ok") {
				return model.Failed(model.KindAuth, message)
			}
		}
	}
	if body != "" && utf8.RuneCountInString(body) < rawMessageLimit {
		return model.Failed(model.KindProtocol, body)
	}
	return model.Failed(model.KindProtocol, string(op)+" failed")
}

// decodeObject parses body as a JSON object, unwrapping a JSONP callback
// first when present.
func decodeObject(body string) (map[string]any, bool) {
	if match := jsonpPattern.FindStringSubmatch(body); match != nil {
		if obj, ok := decodeJSON(stripParens(match[1])); ok {
			return obj, true
		}
	}
	return decodeJSON(body)
}

func stripParens(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func decodeJSON(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func uintField(obj map[string]any, key string) uint64 {
	switch v := obj[key].(type) {
	case json.Number:
		return parseUint(v.String())
	case string:
		return parseUint(v)
	default:
		return 0
	}
}

func parseUint(raw string) uint64 {
	raw = strings.TrimSpace(raw)
	if value, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return value
	}
	if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
		if value >= math.MaxUint64 {
			return math.MaxUint64
		}
		return uint64(value)
	}
	return 0
}
