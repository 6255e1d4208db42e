package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Notifier tells the webapp that a file-derived message finished embedding.
// Non-2xx responses are logged and dropped; the webapp can always poll
// collection-info instead.
type Notifier struct {
	baseURL string
	client  *http.Client
}

func NewNotifier(baseURL string) *Notifier {
	return &Notifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *Notifier) EmbedSuccessful(ctx context.Context, datasourceID string) {
	body, err := json.Marshal(map[string]string{"datasourceId": datasourceID})
	if err != nil {
		log.Printf("WARN webhook payload for %s: %v", datasourceID, err)
		return
	}

	url := fmt.Sprintf("%s/webhook/embed-successful", n.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("WARN webhook request for %s: %v", datasourceID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("WARN webhook POST for %s: %v", datasourceID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("WARN webhook for %s returned %d", datasourceID, resp.StatusCode)
	}
}
