package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// envelope is the wire form of every operator API response.
type envelope struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// apiClient talks to the operator API of a running daemon.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newClient builds a client from the command's persistent flags.
func newClient(cmd *cobra.Command) *apiClient {
	addr, _ := cmd.Flags().GetString("addr")
	return &apiClient{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// get issues a GET and decodes the envelope's data into out (when non-nil).
func (c *apiClient) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, out)
}

// post issues a POST and decodes the envelope's data into out (when non-nil).
func (c *apiClient) post(path string, out interface{}) error {
	return c.do(http.MethodPost, path, out)
}

// del issues a DELETE.
func (c *apiClient) del(path string) error {
	return c.do(http.MethodDelete, path, nil)
}

func (c *apiClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach offsync at %s: %w (is the daemon running?)", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unexpected response from %s: %s", path, strings.TrimSpace(string(body)))
	}

	if env.Status != "ok" {
		if env.Error != "" {
			return fmt.Errorf("%s", env.Error)
		}
		return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// printJSON pretty-prints v when the output flag asks for JSON and reports
// whether it did.
func printJSON(cmd *cobra.Command, v interface{}) (bool, error) {
	format, _ := cmd.Flags().GetString("output")
	if format != "json" {
		return false, nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
