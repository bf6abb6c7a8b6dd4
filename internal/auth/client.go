package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client is a thin wrapper over the auth service HTTP API.
type Client struct {
	client  *resty.Client
	BaseURL string
}

// NewClient creates an auth service client. The timeout bounds every call so
// a hung auth endpoint cannot stall the connection supervisor.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(timeout)

	return &Client{
		client:  client,
		BaseURL: baseURL,
	}
}

func postJSON[T any](ctx context.Context, client *resty.Client, path string, body any) (T, error) {
	var result T
	resp, err := client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("auth post request failed")
		return result, fmt.Errorf("%w: post %s: %v", ErrAuthentication, path, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Str("path", path).Msg("auth post non-2xx")
		return result, fmt.Errorf("%w: %s returned status %d: %s", ErrAuthentication, path, resp.StatusCode(), resp.String())
	}
	return result, nil
}

// GenerateChallenge requests a challenge bound to the caller's public identity.
func (c *Client) GenerateChallenge(ctx context.Context, req GenerateChallengeRequest) (GenerateChallengeResponse, error) {
	return postJSON[GenerateChallengeResponse](ctx, c.client, "/auth/challenge", req)
}

// GenerateTokens exchanges a signed challenge for an access/refresh pair.
func (c *Client) GenerateTokens(ctx context.Context, req GenerateTokensRequest) (GenerateTokensResponse, error) {
	return postJSON[GenerateTokensResponse](ctx, c.client, "/auth/tokens", req)
}

// RefreshAccessToken exchanges the refresh credential for a new access credential.
func (c *Client) RefreshAccessToken(ctx context.Context, req RefreshAccessTokenRequest) (RefreshAccessTokenResponse, error) {
	return postJSON[RefreshAccessTokenResponse](ctx, c.client, "/auth/refresh", req)
}
