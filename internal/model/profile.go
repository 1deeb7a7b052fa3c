package model

import "time"

const (
	DefaultStatusTimeout = 5 * time.Second
	DefaultAuthTimeout   = 10 * time.Second
)

// Param is one form field of a gateway request.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Params keeps form fields in the order they are sent.
type Params []Param

// Get returns the value for key and whether it is present.
func (p Params) Get(key string) (string, bool) {
	for _, item := range p {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// EndpointProfile describes one gateway deployment variant.
type EndpointProfile struct {
	Name                    string        `json:"name"`
	StatusURL               string        `json:"status_url"`
	LoginURL                string        `json:"login_url"`
	ACID                    string        `json:"ac_id"`
	LoginParams             Params        `json:"login_params"`
	LogoutParams            Params        `json:"logout_params"`
	LogoutSendsUsername     bool          `json:"logout_sends_username"`
	StatusUsesJSONPCallback bool          `json:"status_uses_jsonp_callback"`
	StatusTimeout           time.Duration `json:"status_timeout"`
	AuthTimeout             time.Duration `json:"auth_timeout"`
}

// Clone returns a profile that shares no slices with p.
func (p EndpointProfile) Clone() EndpointProfile {
	p.LoginParams = p.LoginParams.Clone()
	p.LogoutParams = p.LogoutParams.Clone()
	return p
}

// WithDefaults fills zero timeouts and the access-controller id.
func (p EndpointProfile) WithDefaults() EndpointProfile {
	if p.StatusTimeout <= 0 {
		p.StatusTimeout = DefaultStatusTimeout
	}
	if p.AuthTimeout <= 0 {
		p.AuthTimeout = DefaultAuthTimeout
	}
	if p.ACID == "" {
		p.ACID = "1"
	}
	return p
}

// Credentials is one operator account.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}
