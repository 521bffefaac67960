// Package authz resolves the requesting owner for the HTTP handlers.
package authz

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnauthorized is returned when no owner identity can be resolved.
var ErrUnauthorized = errors.New("unauthorized")

const devBypassHeader = "x-user-sub"

// Owner resolves the owning username from a REST (v1) request. Order:
// dev-bypass header, Cognito authorizer claims, unverified JWT payload from
// the Authorization header, then the legacy "username" query parameter.
func Owner(req events.APIGatewayProxyRequest, devBypass bool) (string, error) {
	if devBypass {
		if sub := strings.TrimSpace(headerLookup(req.Headers, devBypassHeader)); sub != "" {
			return sub, nil
		}
	}

	if m := req.RequestContext.Authorizer; m != nil {
		if sub := subFromClaims(m["claims"]); sub != "" {
			return sub, nil
		}
		if sub := stringIf(m["sub"]); sub != "" {
			return sub, nil
		}
	}

	if sub := subFromAuthHeader(req.Headers); sub != "" {
		return sub, nil
	}

	if u := strings.TrimSpace(req.QueryStringParameters["username"]); u != "" {
		return u, nil
	}

	return "", ErrUnauthorized
}

// headerLookup returns the value of a header key, case-insensitively.
func headerLookup(h map[string]string, key string) string {
	lk := strings.ToLower(key)
	for k, v := range h {
		if strings.ToLower(k) == lk {
			return v
		}
	}
	return ""
}

// stringIf returns the string value of v if it is a non-empty string.
func stringIf(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return ""
}

// subFromClaims extracts the "sub" claim from an authorizer claims value.
func subFromClaims(raw any) string {
	switch c := raw.(type) {
	case map[string]any:
		return stringIf(c["sub"])
	case map[string]string:
		return c["sub"]
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(c), &m) == nil {
			return stringIf(m["sub"])
		}
	}
	return ""
}

// subFromAuthHeader extracts the "sub" claim from a bearer JWT without
// verifying it; the gateway authorizer is the verification boundary.
func subFromAuthHeader(headers map[string]string) string {
	auth := headerLookup(headers, "Authorization")
	if auth == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		auth = strings.TrimSpace(auth[len("bearer "):])
	}
	parts := strings.Split(auth, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var m map[string]any
	if json.Unmarshal(payload, &m) != nil {
		return ""
	}
	return stringIf(m["sub"])
}
