package relayer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
)

// Client talks to the relayer service. Unary calls ride on retryablehttp;
// the subscription rides on a resty client without a request timeout, since
// the stream is expected to stay open until the connection is torn down.
type Client struct {
	BaseURL string

	cell   *auth.TokenCell
	unary  *retryablehttp.Client
	stream *resty.Client
}

// NewClient builds a relayer client bound to the shared access credential
// cell. The timeout bounds dialing and unary calls; stream liveness is the
// heartbeat watchdog's job, not the transport's.
func NewClient(baseURL string, cell *auth.TokenCell, timeout time.Duration) *Client {
	unary := retryablehttp.NewClient()
	unary.RetryMax = 2
	unary.RetryWaitMin = 200 * time.Millisecond
	unary.RetryWaitMax = 2 * time.Second
	unary.HTTPClient.Timeout = timeout
	unary.Logger = nil

	stream := resty.New().
		SetBaseURL(baseURL).
		SetTransport(&http.Transport{
			ResponseHeaderTimeout: timeout,
		})

	c := &Client{
		BaseURL: baseURL,
		cell:    cell,
		unary:   unary,
		stream:  stream,
	}

	// Per-call interceptor: snapshot the shared credential and attach it.
	// Rotation by the maintenance routine is picked up without re-dialing.
	stream.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader("Authorization", c.bearer())
		return nil
	})

	return c
}

func (c *Client) bearer() string {
	return "Bearer " + c.cell.Load().Value
}

// GetTpuConfigs fetches the relayer's advertised TPU and forwarding sockets.
func (c *Client) GetTpuConfigs(ctx context.Context) (TpuConfigResponse, error) {
	var result TpuConfigResponse

	req, err := retryablehttp.NewRequest(http.MethodGet, c.BaseURL+"/relayer/tpu-configs", nil)
	if err != nil {
		return result, fmt.Errorf("build tpu-configs request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd")
	req.Header.Set("Authorization", c.bearer())

	resp, err := c.unary.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", c.BaseURL).Msg("tpu-configs request failed")
		return result, fmt.Errorf("get tpu configs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, fmt.Errorf("read tpu configs response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("tpu configs returned status %d: %s", resp.StatusCode, string(body))
	}

	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "zstd") {
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return result, fmt.Errorf("zstd: failed to create reader: %w", err)
		}
		defer r.Close()

		out, err := io.ReadAll(r)
		if err != nil {
			return result, fmt.Errorf("zstd: failed to decompress response: %w", err)
		}
		body = out
	}

	if err := sonic.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("unmarshal tpu configs: %w", err)
	}
	return result, nil
}

// SubscribePackets opens the packet subscription stream. The returned Stream
// must be closed by the caller when the connection is abandoned.
func (c *Client) SubscribePackets(ctx context.Context) (*Stream, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "application/x-ndjson").
		Get("/relayer/packets/subscribe")
	if err != nil {
		log.Error().Err(err).Str("url", c.BaseURL).Msg("packet subscription failed")
		return nil, fmt.Errorf("subscribe packets: %w", err)
	}

	if resp.StatusCode() >= 400 {
		body, _ := io.ReadAll(resp.RawBody())
		resp.RawBody().Close()
		return nil, fmt.Errorf("subscribe packets returned status %d: %s", resp.StatusCode(), string(body))
	}

	return newStream(resp.RawBody()), nil
}
