package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spacesquad/mintgate/utils/pkg/retry"
)

// apiError carries the HTTP status so the retry helper can distinguish
// transient server errors from rejections.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.status, e.body)
}

func (e *apiError) StatusCode() int {
	return e.status
}

// PublishRoot posts a new entitlement root to the running API's admin
// endpoint. Transient failures are retried with backoff.
func PublishRoot(ctx context.Context, log *slog.Logger, apiURL, adminToken, root string, dryRun bool) error {
	if !strings.HasPrefix(root, "0x") || len(root) != 66 {
		return fmt.Errorf("root must be a 0x-prefixed 32-byte hex hash, got %q", root)
	}
	if dryRun {
		fmt.Printf("[DRY RUN] Would publish root %s to %s\n", root, apiURL)
		return nil
	}

	payload, err := json.Marshal(map[string]string{"root": root})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := strings.TrimRight(apiURL, "/") + "/admin/root"

	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish root: %w", err)
	}

	log.Info("published root", "root", root, "api", apiURL)
	return nil
}
