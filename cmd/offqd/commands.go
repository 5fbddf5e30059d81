package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DarlingtonDeveloper/offq"
)

// NewInspectCommand creates the inspect command, which prints the persisted
// queue without starting the daemon.
func NewInspectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the persisted queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			kv, closeKV, err := openKV(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeKV()

			actions, err := offq.NewQueueStore(kv, cfg.QueueKey).Load(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(actions)
		},
	}
}

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	Endpoint string
	Method   string
	Body     string
	Headers  map[string]string
}

// NewEnqueueCommand creates the enqueue command, which hands an action to a
// running daemon.
func NewEnqueueCommand(opts *RootOptions) *cobra.Command {
	eo := &EnqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a write request on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := offq.ParseMethod(eo.Method); !ok {
				return fmt.Errorf("invalid method %q: must be POST, PUT, PATCH or DELETE", eo.Method)
			}
			req := offq.EnqueueRequest{
				Endpoint: eo.Endpoint,
				Method:   eo.Method,
				Headers:  eo.Headers,
			}
			if eo.Body != "" {
				if !json.Valid([]byte(eo.Body)) {
					return fmt.Errorf("body is not valid JSON")
				}
				req.Body = json.RawMessage(eo.Body)
			}

			var resp map[string]string
			if err := postJSON(opts.Addr+"/api/v1/queue/", req, http.StatusAccepted, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp["id"])
			return nil
		},
	}

	cmd.Flags().StringVarP(&eo.Endpoint, "endpoint", "e", "", "resource path, e.g. /quiz/7/submit")
	cmd.Flags().StringVarP(&eo.Method, "method", "m", "POST", "HTTP method (POST|PUT|PATCH|DELETE)")
	cmd.Flags().StringVarP(&eo.Body, "body", "b", "", "JSON body")
	cmd.Flags().StringToStringVarP(&eo.Headers, "header", "H", nil, "extra request header (name=value)")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

// NewSyncCommand creates the sync command, which asks a running daemon to
// start a pass now.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Trigger a replay pass on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]string
			err := postJSON(opts.Addr+"/api/v1/queue/sync", struct{}{}, http.StatusAccepted, &resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp["status"])
			return nil
		},
	}
}

func postJSON(url string, in any, want int, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	hc := &http.Client{Timeout: 10 * time.Second}
	resp, err := hc.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
