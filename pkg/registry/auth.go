package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/freshen/freshen/pkg/exitcodes"
	"github.com/freshen/freshen/pkg/image"
	log "github.com/freshen/freshen/pkg/log"
)

// hostAuth is the cached result of probing one registry host's API root.
type hostAuth struct {
	required bool   // false: the registry serves /v2/ without a token
	realm    string // token endpoint URL
	service  string // service name for the token request
}

var challengeParamPattern = regexp.MustCompile(`([a-zA-Z_]+)="([^"]*)"`)

// authConfig probes GET /v2/ once per registry host and caches the outcome.
// A 401 carries the Bearer challenge naming the token endpoint; a clean
// success means no token is needed; anything else is fatal.
func (c *Client) authConfig(ctx context.Context, host string) (*hostAuth, error) {
	if cached, ok := c.authCache[host]; ok {
		return cached, nil
	}

	probeURL := fmt.Sprintf("%s://%s/v2/", c.scheme, host)
	status, header, _, err := c.get(ctx, probeURL, nil)
	if err != nil {
		return nil, err
	}

	auth := &hostAuth{}
	switch {
	case status >= 200 && status < 300:
		log.Debug("registry requires no token", "host", host)
	case status == http.StatusUnauthorized:
		realm, service, err := parseChallenge(header.Get("Www-Authenticate"))
		if err != nil {
			return nil, err
		}
		auth.required = true
		auth.realm = realm
		auth.service = service
		log.Debug("registry token endpoint discovered",
			"host", host, "realm", realm, "service", service)
	default:
		return nil, exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: auth probe of %s returned status %d", ErrUnexpectedStatus, host, status)
	}

	c.authCache[host] = auth
	return auth, nil
}

// parseChallenge extracts realm and service from a Bearer WWW-Authenticate
// challenge.
func parseChallenge(challenge string) (realm, service string, err error) {
	if !strings.HasPrefix(strings.ToLower(challenge), "bearer ") {
		return "", "", exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: %q", ErrUnsupportedChallenge, challenge)
	}

	params := map[string]string{}
	for _, m := range challengeParamPattern.FindAllStringSubmatch(challenge, -1) {
		params[strings.ToLower(m[1])] = m[2]
	}
	if params["realm"] == "" {
		return "", "", exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: bearer challenge missing realm", ErrUnsupportedChallenge)
	}
	return params["realm"], params["service"], nil
}

// pullToken requests a pull-scoped token for the reference's repository.
// Basic credentials are attached only when the reference lives under the
// account this process is authenticated against and a password was supplied.
// A 403 means "no access / not found" and is reported as ok=false, not as an
// error. The token is cached per host and repository.
func (c *Client) pullToken(ctx context.Context, auth *hostAuth, ref *image.Reference) (token string, ok bool, err error) {
	if !auth.required {
		return "", true, nil
	}

	cacheKey := ref.Registry + "|" + ref.Repository
	if cached, hit := c.tokenCache[cacheKey]; hit {
		return cached, true, nil
	}

	values := url.Values{}
	if auth.service != "" {
		values.Set("service", auth.service)
	}
	values.Set("scope", fmt.Sprintf("repository:%s:pull", ref.Repository))

	header := http.Header{}
	if c.password != "" && ref.Registry == c.accountHost && ref.Account == c.accountName {
		values.Set("account", c.accountName)
		creds := base64.StdEncoding.EncodeToString([]byte(c.accountName + ":" + c.password))
		header.Set("Authorization", "Basic "+creds)
	}

	tokenURL := auth.realm
	if strings.Contains(tokenURL, "?") {
		tokenURL += "&" + values.Encode()
	} else {
		tokenURL += "?" + values.Encode()
	}

	status, _, body, err := c.get(ctx, tokenURL, header)
	if err != nil {
		return "", false, err
	}
	switch {
	case status == http.StatusForbidden:
		return "", false, nil
	case status < 200 || status >= 300:
		return "", false, exitcodes.New(exitcodes.ExitRegistryProtocolError,
			"%v: token endpoint returned status %d", ErrUnexpectedStatus, status)
	}

	var reply struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", false, exitcodes.Wrap(exitcodes.ExitRegistryMalformedReply,
			fmt.Errorf("%w: token endpoint: %v", ErrMalformedResponse, err))
	}
	if reply.Token == "" {
		return "", false, exitcodes.New(exitcodes.ExitRegistryMalformedReply,
			"%v: token endpoint reply has no token field", ErrMalformedResponse)
	}

	c.tokenCache[cacheKey] = reply.Token
	return reply.Token, true, nil
}
