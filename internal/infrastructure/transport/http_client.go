package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	"skyfleet/pkg/circuitbreaker"
	apperrors "skyfleet/pkg/errors"
)

// Client performs the HTTP half of the session handshake: server
// discovery and agent registration. All requests run through a circuit
// breaker so a down server fails the whole fleet fast instead of piling
// up timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.RegistrationClient = (*Client)(nil)

func NewClient(baseURL string, requestTimeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// Discover probes the control server. A 200 response means the server is
// up and accepting agents.
func (c *Client) Discover(ctx context.Context) error {
	return c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drone/discover", nil)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternal, "build discovery request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeTransport, "discovery request failed").
				WithReason("discovery_failed")
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return apperrors.NewTransportError(fmt.Sprintf("discovery returned status %d", resp.StatusCode)).
				WithReason("discovery_failed")
		}

		c.logger.Debugw("server discovered", "url", c.baseURL)
		return nil
	})
}

// Register posts the agent's registration document and returns the
// session token the server minted for it.
func (c *Client) Register(ctx context.Context, regReq domain.HTTPRegisterRequest) (domain.SessionToken, error) {
	var token domain.SessionToken

	err := c.breaker.Execute(ctx, func() error {
		body, err := json.Marshal(regReq)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal registration request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drone/register", bytes.NewReader(body))
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternal, "build registration request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeTransport, "registration request failed").
				WithReason("http_registration_failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return apperrors.NewTransportError(fmt.Sprintf("registration returned status %d", resp.StatusCode)).
				WithReason("http_registration_failed")
		}

		var regResp domain.HTTPRegisterResponse
		if err := json.NewDecoder(resp.Body).Decode(&regResp); err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeProtocol, "decode registration response").
				WithReason("http_registration_failed")
		}
		if regResp.SessionToken == "" {
			return apperrors.NewProtocolError("registration response missing session token").
				WithReason("http_registration_failed")
		}

		token = regResp.SessionToken
		c.logger.Debugw("registration accepted", "drone_id", regReq.DroneID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
