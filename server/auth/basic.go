package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/s00inx/xchgserver/server/protocol"
)

// Checker validates a username and password pair.
// An error means the check itself failed, not that credentials are wrong.
type Checker interface {
	CheckCredentials(username, password string) (bool, error)
}

type CheckerFunc func(username, password string) (bool, error)

func (f CheckerFunc) CheckCredentials(username, password string) (bool, error) {
	return f(username, password)
}

var realmEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Basic implements the Basic scheme (RFC 7617)
type Basic struct {
	realm     string
	charset   encoding.Encoding
	checker   Checker
	challenge string
}

// NewBasic creates Basic authenticator that decodes credentials as ISO-8859-1
func NewBasic(realm string, checker Checker) (*Basic, error) {
	return NewBasicCharset(realm, charmap.ISO8859_1, checker)
}

// NewBasicCharset creates Basic authenticator that decodes credentials with charset.
// For UTF-8 the challenge carries charset="UTF-8".
func NewBasicCharset(realm string, charset encoding.Encoding, checker Checker) (*Basic, error) {
	if charset == nil {
		return nil, fmt.Errorf("%w: charset", ErrNilArgument)
	}
	if checker == nil {
		return nil, fmt.Errorf("%w: checker", ErrNilArgument)
	}
	if realm == "" {
		return nil, fmt.Errorf("%w: empty realm", ErrInvalidArgument)
	}

	challenge := `Basic realm="` + realmEscaper.Replace(realm) + `"`
	if name, err := ianaindex.MIME.Name(charset); err == nil && strings.EqualFold(name, "UTF-8") {
		challenge += `, charset="UTF-8"`
	}
	return &Basic{realm: realm, charset: charset, checker: checker, challenge: challenge}, nil
}

// LookupCharset resolves IANA charset name, "utf-8", "ISO-8859-1", "latin1"...
func LookupCharset(name string) (encoding.Encoding, error) {
	cs, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("%w: charset %q: %v", ErrInvalidArgument, name, err)
	}
	if cs == nil {
		return nil, fmt.Errorf("%w: charset %q is not supported", ErrInvalidArgument, name)
	}
	return cs, nil
}

func (b *Basic) Realm() string {
	return b.realm
}

// Challenge is the WWW-Authenticate value sent with 401
func (b *Basic) Challenge() string {
	return b.challenge
}

// Authenticate never panics, a panicking or failing checker gives Failure with status 500
func (b *Basic) Authenticate(h *protocol.Header) (res Result) {
	value := h.Get("Authorization")
	if value == "" {
		return b.retry()
	}
	scheme, cred, _ := strings.Cut(value, " ")
	if !strings.EqualFold(scheme, "Basic") {
		return b.retry()
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cred))
	if err != nil {
		return b.retry()
	}
	decoded, err := b.charset.NewDecoder().Bytes(raw)
	if err != nil {
		return b.retry()
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return b.retry()
	}

	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Errorf("auth: check credentials panicked: %v", r))
		}
	}()
	valid, err := b.checker.CheckCredentials(user, pass)
	if err != nil {
		return failure(fmt.Errorf("auth: check credentials: %w", err))
	}
	if !valid {
		return b.retry()
	}
	return Result{
		Outcome:   Success,
		Principal: &Principal{Username: user, Realm: b.realm},
		Status:    200,
	}
}

func (b *Basic) retry() Result {
	return Result{
		Outcome: Retry,
		Status:  401,
		Header:  protocol.NewHeader("WWW-Authenticate", b.challenge),
	}
}

func failure(err error) Result {
	return Result{Outcome: Failure, Status: 500, Err: err}
}
