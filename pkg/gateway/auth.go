package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoToken  = errors.New("client did not provide a bearer token")
	errBadToken = errors.New("bearer token rejected")
)

// tokenVerifier checks HS256-signed bearer tokens. Claims beyond validity windows are not
// inspected; possession of a token signed with the shared secret is the authorization.
type tokenVerifier struct {
	secret []byte
}

func (v *tokenVerifier) verify(req *http.Request) error {
	raw, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return errNoToken
	}
	_, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return errBadToken
	}
	return nil
}
