/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/devsuryashekhar/In-Vitro-Scan/internal/config"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain"
	"github.com/devsuryashekhar/In-Vitro-Scan/internal/domain/model"
)

const (
	defaultTimeout   = 2 * time.Second
	defaultUserAgent = "invitro-scanner"
	mediaTypeCBOR    = "application/cbor"
	mediaTypeJSON    = "application/json"
	maxResponseBytes = 1 << 20
)

// Verdict is the authority's answer to one redeem request.
type Verdict struct {
	Status    model.RedeemStatus
	Remaining int
	// Event names the event that answered, when the authority reports it.
	Event string
}

const eventHeader = "X-Invitro-Event"

// escapeToken escapes token as one path segment. Dots are escaped as well so
// "." and ".." survive path cleaning on the way to the authority.
func escapeToken(token string) string {
	return strings.ReplaceAll(url.PathEscape(token), ".", "%2E")
}

// Client talks to the admission authority over HTTP. Every call is bounded by
// the configured timeout; transport failures surface as
// domain.ErrAuthorityUnreachable.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	accept     string
	userAgent  string
	logger     *log.Logger
}

func NewClient(cfg config.ScannerConfig) (*Client, error) {
	if cfg.AuthorityURL == "" {
		return nil, fmt.Errorf("authority URL must not be empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.AuthorityURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse authority URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported authority URL scheme %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	accept := mediaTypeJSON
	if cfg.UseCBOR {
		accept = mediaTypeCBOR
	}
	userAgent := defaultUserAgent
	if cfg.StationID != "" {
		userAgent += " (" + cfg.StationID + ")"
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		accept:     accept,
		userAgent:  userAgent,
		logger:     logger,
	}, nil
}

// Redeem submits token to POST /scan/{token}.
func (c *Client) Redeem(ctx context.Context, token string) (Verdict, error) {
	var body model.ScanResponse
	header, err := c.do(ctx, http.MethodPost, "/scan/"+escapeToken(token), &body)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{Event: header.Get(eventHeader)}
	switch {
	case body.Success:
		v.Status = model.RedeemAdmitted
		if body.Remaining != nil {
			v.Remaining = *body.Remaining
		}
		return v, nil
	case body.Msg == model.MsgAlreadyEntered:
		v.Status = model.RedeemAlreadyUsed
		return v, nil
	case body.Msg == model.MsgInvalidToken:
		v.Status = model.RedeemInvalid
		return v, nil
	default:
		c.logger.Printf("unexpected scan response for %s: %+v", token, body)
		return Verdict{}, fmt.Errorf("unexpected scan response message %q", body.Msg)
	}
}

// Stats fetches GET /stats.
func (c *Client) Stats(ctx context.Context) (model.Counts, error) {
	var counts model.Counts
	_, err := c.do(ctx, http.MethodGet, "/stats", &counts)
	return counts, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", c.accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthorityUnreachable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrAuthorityUnreachable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := decode(resp.Header.Get("Content-Type"), payload, out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
		return resp.Header, nil
	case http.StatusServiceUnavailable:
		var e model.ErrorResponse
		if err := decode(resp.Header.Get("Content-Type"), payload, &e); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, bytes.TrimSpace(payload))
		}
		switch e.Code {
		case model.CodeNoActiveEvent:
			return nil, fmt.Errorf("%w: %s", domain.ErrNoActiveEvent, e.Error)
		default:
			return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, e.Error)
		}
	default:
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(payload))
	}
}

func decode(contentType string, payload []byte, out any) error {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == mediaTypeCBOR {
		return cbor.Unmarshal(payload, out)
	}
	return json.Unmarshal(payload, out)
}
