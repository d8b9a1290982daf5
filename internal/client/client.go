// Package client talks to an arena node over its HTTP API. Error replies are
// mapped back to the engine's sentinel errors so callers can use errors.Is
// across the network boundary.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/skyarena/server/internal/api"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/history"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/world"
)

// Client is a handle on one node.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

// New returns a client for the node at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(name, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{name: name, baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Name is the roster name of the node.
func (c *Client) Name() string { return c.name }

// Join creates a new character.
func (c *Client) Join(ctx context.Context, spec world.CharacterSpec) (string, error) {
	var resp api.JoinResponse
	if err := c.do(ctx, http.MethodPost, "/join", joinBody(spec, nil), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Arrive joins a character relocating with lease.
func (c *Client) Arrive(ctx context.Context, spec world.CharacterSpec, lease relocation.Lease) error {
	return c.do(ctx, http.MethodPost, "/join", joinBody(spec, &lease), nil)
}

// Leave removes a character from the node.
func (c *Client) Leave(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/character/"+url.PathEscape(id), nil, nil)
}

// Release removes a departing character under its outstanding lease.
func (c *Client) Release(ctx context.Context, id, leaseID string) error {
	q := url.Values{"lease": {leaseID}}
	return c.do(ctx, http.MethodDelete, "/character/"+url.PathEscape(id)+"?"+q.Encode(), nil, nil)
}

// Settle activates a pending arrival.
func (c *Client) Settle(ctx context.Context, id, leaseID string) error {
	return c.do(ctx, http.MethodPost, "/settle", api.SettleRequest{ID: id, LeaseID: leaseID}, nil)
}

func (c *Client) Departure(ctx context.Context, id string) (relocation.Departure, error) {
	var dep relocation.Departure
	err := c.do(ctx, http.MethodGet, "/character/"+url.PathEscape(id)+"/departure", nil, &dep)
	return dep, err
}

func (c *Client) Characters(ctx context.Context) ([]string, error) {
	var resp api.CharactersResponse
	if err := c.do(ctx, http.MethodGet, "/characters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Characters, nil
}

func (c *Client) Character(ctx context.Context, id string) (world.CharacterView, error) {
	var v world.CharacterView
	err := c.do(ctx, http.MethodGet, "/character/"+url.PathEscape(id), nil, &v)
	return v, err
}

// Targets returns the ids id may target this turn.
func (c *Client) Targets(ctx context.Context, id string) ([]string, error) {
	var resp api.TargetsResponse
	if err := c.do(ctx, http.MethodGet, "/character/"+url.PathEscape(id)+"/targets", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Targets, nil
}

func (c *Client) SetTarget(ctx context.Context, id, targetID string) error {
	return c.do(ctx, http.MethodPost, "/set_target", api.SetTargetRequest{ID: id, TargetID: targetID}, nil)
}

func (c *Client) SetAction(ctx context.Context, id string, a world.Action) error {
	return c.do(ctx, http.MethodPost, "/set_action", api.SetActionRequest{ID: id, Action: a.String()}, nil)
}

func (c *Client) Start(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/start", nil, nil)
}

func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stop", nil, nil)
}

func (c *Client) Status(ctx context.Context) (engine.Status, error) {
	var st engine.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) History(ctx context.Context, turn int) (history.Snapshot, error) {
	var snap history.Snapshot
	err := c.do(ctx, http.MethodGet, "/history/"+strconv.Itoa(turn), nil, &snap)
	return snap, err
}

func joinBody(spec world.CharacterSpec, lease *relocation.Lease) api.JoinRequest {
	return api.JoinRequest{
		ID:       spec.ID,
		TeamID:   spec.TeamID,
		Life:     &spec.Life,
		Strength: &spec.Strength,
		Armor:    &spec.Armor,
		Speed:    &spec.Speed,
		Lease:    lease,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s on %s: %w", method, path, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError turns an error reply into an error wrapping the matching
// sentinel, or a plain status error for unknown replies.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return fmt.Errorf("node returned %s", resp.Status)
	}
	if sentinel := api.SentinelFor(body.Code); sentinel != nil {
		return fmt.Errorf("%s: %w", body.Error, sentinel)
	}
	return fmt.Errorf("node returned %s: %s", resp.Status, body.Error)
}

var _ relocation.Node = (*Client)(nil)
