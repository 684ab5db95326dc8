package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/veralabs/resonance/internal/printer"
)

var daemonURL string

// baseURL resolves the daemon address: --daemon flag, then
// RESONANCE_DAEMON_URL, then the default report listen address.
func baseURL() string {
	if daemonURL != "" {
		return strings.TrimRight(daemonURL, "/")
	}
	if env := os.Getenv("RESONANCE_DAEMON_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:8080"
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// fetch performs a request against the daemon and decodes the JSON body into
// out when the status code matches expect. Any other status becomes a
// formatted CLI error carrying the daemon's response text.
func fetch(method, path string, expect int, out interface{}) error {
	url := baseURL() + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return printer.Error(
			"Cannot reach resonance daemon",
			fmt.Sprintf("Request to %s failed: %v", url, err),
			[]string{
				"Check that resonanced is running",
				"Point resctl at it with --daemon or RESONANCE_DAEMON_URL",
			})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != expect {
		return printer.Error(
			fmt.Sprintf("Daemon returned %s", resp.Status),
			strings.TrimSpace(string(body)),
			nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON renders a decoded response back out as indented JSON for --json
// mode.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
