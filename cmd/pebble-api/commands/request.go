package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-api/cmd/pebble-api/output"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

var (
	// Request flags
	requestBody    string
	requestHeaders []string
	requestTimeout time.Duration
)

// requestCmd sends one request to a running server
var requestCmd = &cobra.Command{
	Use:   "request METHOD URL",
	Short: "Send a request to a running API",
	Long: `Send a single HTTP request and print the status and JSON body.

Examples:
  pebble-api request GET http://127.0.0.1:8000/users
  pebble-api request POST http://127.0.0.1:8000/users -d '{"id":"1","name":"Ada"}'
  pebble-api request GET http://127.0.0.1:8000/users/1 -H "X-Api-Key: secret"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringVarP(&requestBody, "data", "d", "", "Request body (@file reads a file)")
	requestCmd.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "Header as \"Name: value\" (repeatable)")
	requestCmd.Flags().DurationVar(&requestTimeout, "timeout", 60*time.Second, "Client timeout")
}

func runRequest(ctx context.Context, rawMethod, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	method, err := schema.ParseHTTPMethod(rawMethod)
	if err != nil {
		return err
	}

	body := requestBody
	if path, ok := strings.CutPrefix(body, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		body = string(data)
	}

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, string(method), url, rd)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range requestHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("invalid header %q, expected \"Name: value\"", h)
		}
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	client := &http.Client{Timeout: requestTimeout}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	elapsed := time.Since(start)

	if jsonOutput {
		var parsed any
		if len(data) > 0 {
			if err := json.Unmarshal(data, &parsed); err != nil {
				parsed = string(data)
			}
		}
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"status":      resp.StatusCode,
			"duration_ms": elapsed.Milliseconds(),
			"body":        parsed,
		})
	}

	output.HTTPStatus(resp.StatusCode, resp.Status, elapsed)
	if len(data) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
