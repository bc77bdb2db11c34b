package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Roles reports both role memberships for an account.
type Roles struct {
	Account     string `json:"account"`
	Verifier    bool   `json:"verifier"`
	Distributor bool   `json:"distributor"`
}

// Overview summarises the ledger state.
type Overview struct {
	Owner             string `json:"owner"`
	QualityCount      uint64 `json:"quality_count"`
	DistributionCount uint64 `json:"distribution_count"`
}

// AuditReport is the result of the node's most recent integrity audit pass.
// Audited is false when the auditor is enabled but has not completed a pass
// yet.
type AuditReport struct {
	Audited bool     `json:"audited"`
	RunAt   string   `json:"run_at"`
	Clean   bool     `json:"clean"`
	Faults  []string `json:"faults"`
}

// Owner returns the ledger's genesis owner identity, or "" if the ledger has
// not been initialised.
func (c *Client) Owner(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/api/v1/access/owner")
	if err != nil {
		return "", err
	}
	var resp struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.Owner, nil
}

// GetRoles returns the verifier and distributor memberships for an account.
func (c *Client) GetRoles(ctx context.Context, account string) (*Roles, error) {
	body, err := c.get(ctx, "/api/v1/access/roles/"+url.PathEscape(account))
	if err != nil {
		return nil, err
	}
	var roles Roles
	if err := json.Unmarshal(body, &roles); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &roles, nil
}

// GrantVerifier adds an account to the verifier set. Owner only; granting an
// account that already holds the role succeeds without change.
func (c *Client) GrantVerifier(ctx context.Context, account string) error {
	return c.grantRole(ctx, "/api/v1/access/verifiers", account)
}

// RevokeVerifier removes an account from the verifier set. Owner only;
// revoking an account that never held the role succeeds without change.
func (c *Client) RevokeVerifier(ctx context.Context, account string) error {
	return c.revokeRole(ctx, "/api/v1/access/verifiers/", account)
}

// GrantDistributor adds an account to the distributor set. Owner only.
func (c *Client) GrantDistributor(ctx context.Context, account string) error {
	return c.grantRole(ctx, "/api/v1/access/distributors", account)
}

// RevokeDistributor removes an account from the distributor set. Owner only.
func (c *Client) RevokeDistributor(ctx context.Context, account string) error {
	return c.revokeRole(ctx, "/api/v1/access/distributors/", account)
}

// IsVerifier reports whether an account holds the verifier role.
func (c *Client) IsVerifier(ctx context.Context, account string) (bool, error) {
	return c.checkRole(ctx, "/api/v1/access/verifiers/", account, "verifier")
}

// IsDistributor reports whether an account holds the distributor role.
func (c *Client) IsDistributor(ctx context.Context, account string) (bool, error) {
	return c.checkRole(ctx, "/api/v1/access/distributors/", account, "distributor")
}

// LedgerOverview returns the ledger's owner and record counts.
func (c *Client) LedgerOverview(ctx context.Context) (*Overview, error) {
	body, err := c.get(ctx, "/api/v1/ledger/overview")
	if err != nil {
		return nil, err
	}
	var ov Overview
	if err := json.Unmarshal(body, &ov); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &ov, nil
}

// LastAudit returns the node's most recent integrity audit result. It fails
// when the node runs without the auditor enabled.
func (c *Client) LastAudit(ctx context.Context) (*AuditReport, error) {
	body, err := c.get(ctx, "/api/v1/ledger/audit")
	if err != nil {
		return nil, err
	}
	var report AuditReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

// Healthy reports whether the node answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeBase+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) grantRole(ctx context.Context, path, account string) error {
	payload, _ := json.Marshal(map[string]string{"account": account})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	_, err = c.do(req)
	return err
}

func (c *Client) revokeRole(ctx context.Context, pathPrefix, account string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.nodeBase+pathPrefix+url.PathEscape(account), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	_, err = c.do(req)
	return err
}

func (c *Client) checkRole(ctx context.Context, pathPrefix, account, key string) (bool, error) {
	body, err := c.get(ctx, pathPrefix+url.PathEscape(account))
	if err != nil {
		return false, err
	}
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	member, _ := resp[key].(bool)
	return member, nil
}

// get issues an authenticated GET against the node and returns the body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}
