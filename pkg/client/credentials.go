package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// Credentials holds an enrolled ledger identity and its access key.
// It is written to disk by 'aqua enroll' and read back by
// NewFromCredentialsFile.
type Credentials struct {
	// Identity is the enrolled ledger identity, e.g. "plant-7".
	Identity string `json:"identity"`

	// AccessKey is the key handed out at enrollment. Keep this secret; the
	// node only stores a hash and cannot show it again.
	AccessKey string `json:"access_key"`

	// Node optionally records which node issued the key.
	Node string `json:"node,omitempty"`
}

// LoadCredentials reads a credentials JSON file written by 'aqua enroll'.
//
//	creds, err := client.LoadCredentials(os.ExpandEnv("$HOME/.aqua/credentials.json"))
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials %q: %w", path, err)
	}
	if creds.Identity == "" || creds.AccessKey == "" {
		return nil, fmt.Errorf("credentials %q missing identity or access_key", path)
	}
	return &creds, nil
}

// SaveCredentials writes the credentials to path with owner-only
// permissions.
func SaveCredentials(path string, creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// NewFromCredentialsFile creates an authenticated SDK client by loading the
// credentials written by 'aqua enroll' from path.
//
// Additional options (e.g. WithCacheTTL) can be appended:
//
//	c, err := client.NewFromCredentialsFile(
//	    "https://node.aquatrace.example",
//	    os.ExpandEnv("$HOME/.aqua/credentials.json"),
//	    client.WithCacheTTL(30*time.Second),
//	)
func NewFromCredentialsFile(nodeBase, path string, opts ...Option) (*Client, error) {
	creds, err := LoadCredentials(path)
	if err != nil {
		return nil, err
	}
	return New(nodeBase, append([]Option{WithAccessKey(creds.Identity, creds.AccessKey)}, opts...)...)
}

// WithCredentialsFile is the functional-option form of
// NewFromCredentialsFile. Use it when you need to combine credential loading
// with other New() options:
//
//	c, err := client.New(nodeURL,
//	    client.WithCredentialsFile(credsPath),
//	    client.WithCacheTTL(30*time.Second),
//	)
func WithCredentialsFile(path string) Option {
	return func(c *Client) error {
		creds, err := LoadCredentials(path)
		if err != nil {
			return err
		}
		return WithAccessKey(creds.Identity, creds.AccessKey)(c)
	}
}

// AdminToken exchanges the node's configured admin secret for an operator
// admin token. The returned token authorises administrative endpoints such
// as identity enrollment.
func (c *Client) AdminToken(ctx context.Context, secret string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"secret": secret})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+"/api/v1/operators/admin-token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.Token, nil
}

// Enroll registers a new ledger identity on the node and returns its access
// key. Requires an admin token via WithBearerToken; the access key is shown
// exactly once, so persist it with SaveCredentials.
func (c *Client) Enroll(ctx context.Context, identity string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"identity": identity})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeBase+"/api/v1/identities", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		AccessKey string `json:"access_key"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return resp.AccessKey, nil
}
