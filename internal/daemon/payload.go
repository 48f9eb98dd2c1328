package daemon

import (
	"encoding/json"
	"strings"

	"github.com/axon-dev/axon/internal/crawl"
)

// WebhookInfo is what the daemon extracts from a webhook payload: which
// crawl it is about, what happened, and any pages delivered inline.
type WebhookInfo struct {
	JobID  string
	Status string // completed, failed, cancelled, or empty when unknown
	Pages  []crawl.Document
}

// ExtractJobInfo parses a webhook payload. Scraping services disagree on the
// envelope, so the parser tolerates several shapes: jobId at the top level or
// nested under data/crawl, status explicit or inferred from an event name,
// pages under data, data.data, or crawl.data. Returns nil when no jobId can
// be found.
func ExtractJobInfo(raw []byte) *WebhookInfo {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	data, _ := payload["data"].(map[string]any)
	crawlObj, _ := payload["crawl"].(map[string]any)

	jobID := firstString(
		payload["jobId"],
		payload["id"],
		nested(data, "jobId"), nested(data, "id"),
		nested(crawlObj, "jobId"), nested(crawlObj, "id"),
	)
	if jobID == "" {
		return nil
	}

	info := &WebhookInfo{JobID: jobID}

	status := firstString(
		payload["status"],
		nested(data, "status"),
		nested(crawlObj, "status"),
	)
	if status == "" {
		status = statusFromEvent(firstString(payload["event"], payload["type"]))
	}
	switch status {
	case "completed", "failed", "cancelled":
		info.Status = status
	}

	info.Pages = extractPages(payload, data, crawlObj)
	return info
}

// statusFromEvent infers a status from an event or type string such as
// "crawl.completed" or "crawl_failed".
func statusFromEvent(event string) string {
	event = strings.ToLower(event)
	switch {
	case strings.Contains(event, "completed"):
		return "completed"
	case strings.Contains(event, "failed"):
		return "failed"
	case strings.Contains(event, "cancelled"):
		return "cancelled"
	}
	return ""
}

// extractPages finds a page array under data, data.data, or crawl.data and
// decodes it into documents.
func extractPages(payload, data, crawlObj map[string]any) []crawl.Document {
	candidates := []any{
		payload["data"],
		nested(data, "data"),
		nested(crawlObj, "data"),
	}
	for _, candidate := range candidates {
		arr, ok := candidate.([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		if docs := decodeDocuments(arr); len(docs) > 0 {
			return docs
		}
	}
	return nil
}

func decodeDocuments(arr []any) []crawl.Document {
	encoded, err := json.Marshal(arr)
	if err != nil {
		return nil
	}
	var docs []crawl.Document
	if err := json.Unmarshal(encoded, &docs); err != nil {
		return nil
	}
	return docs
}

func nested(obj map[string]any, key string) any {
	if obj == nil {
		return nil
	}
	return obj[key]
}

// firstString returns the first value that is a non-empty string.
func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
