package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// Hosts covers /hosts.
type Hosts struct {
	c *Client
}

func NewHosts(c *Client) *Hosts { return &Hosts{c: c} }

func hostPath(id int64) string {
	return "/hosts/" + strconv.FormatInt(id, 10)
}

func (h *Hosts) List(ctx context.Context, p HostParams) ([]Host, error) {
	var hosts []Host
	if err := h.c.Do(ctx, http.MethodGet, "/hosts", p.Values(), nil, &hosts); err != nil {
		return nil, fmt.Errorf("listing hosts: %w", err)
	}
	return hosts, nil
}

func (h *Hosts) Get(ctx context.Context, id int64) (*Host, error) {
	var host Host
	if err := h.c.Do(ctx, http.MethodGet, hostPath(id), nil, nil, &host); err != nil {
		return nil, fmt.Errorf("fetching host %d: %w", id, err)
	}
	return &host, nil
}

func (h *Hosts) Create(ctx context.Context, in HostInput) (*Host, error) {
	var host Host
	if err := h.c.Do(ctx, http.MethodPost, "/hosts", nil, in, &host); err != nil {
		return nil, fmt.Errorf("creating host: %w", err)
	}
	return &host, nil
}

func (h *Hosts) Update(ctx context.Context, id int64, in HostInput) (*Host, error) {
	var host Host
	if err := h.c.Do(ctx, http.MethodPut, hostPath(id), nil, in, &host); err != nil {
		return nil, fmt.Errorf("updating host %d: %w", id, err)
	}
	return &host, nil
}

func (h *Hosts) Delete(ctx context.Context, id int64) error {
	if err := h.c.Do(ctx, http.MethodDelete, hostPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("deleting host %d: %w", id, err)
	}
	return nil
}

// ToggleStatus flips is_active.
func (h *Hosts) ToggleStatus(ctx context.Context, id int64) (*Host, error) {
	var host Host
	if err := h.c.Do(ctx, http.MethodPatch, hostPath(id)+"/toggle-status", nil, nil, &host); err != nil {
		return nil, fmt.Errorf("toggling host %d: %w", id, err)
	}
	return &host, nil
}
