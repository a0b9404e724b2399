package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

const defaultRequestTimeout = 30 * time.Second

// ResourceDescriptor is one entry in a resources/list response.
type ResourceDescriptor struct {
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolDescriptor is one entry in a tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Initialize issues the initialize handshake required before any
// other method call.
func (c *Client) Initialize(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
	}, defaultRequestTimeout)
}

// ListResources calls resources/list and returns the flat descriptor
// list.
func (c *Client) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	raw, err := c.Request(ctx, "resources/list", nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode resources/list: %w", err)
	}
	return result.Resources, nil
}

// ListTools calls tools/list and returns the flat descriptor list.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	raw, err := c.Request(ctx, "tools/list", nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	return result.Tools, nil
}

type contentItem struct {
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResource calls resources/read and decodes the first content
// item carrying non-empty text or blob into a payload.Payload,
// following the mime/content decode rules: a non-empty blob is
// base64-decoded, written to a temp file and returned as
// ParquetFile when the mime or extension says Parquet, else returned
// as Binary; non-empty text is parsed as JSON when possible (a list
// becomes Rows, an object is wrapped as a one-row Rows), else
// returned as Text.
func (c *Client) ReadResource(ctx context.Context, uri string) (payload.Payload, error) {
	raw, err := c.Request(ctx, "resources/read", map[string]interface{}{"uri": uri}, defaultRequestTimeout)
	if err != nil {
		return payload.Payload{}, err
	}
	var result struct {
		Contents []contentItem `json:"contents"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return payload.Payload{}, fmt.Errorf("decode resources/read: %w", err)
	}

	for _, item := range result.Contents {
		switch {
		case item.Blob != "":
			return decodeBlob(item, uri)
		case item.Text != "":
			return decodeText(item.Text), nil
		}
	}
	return payload.Text(""), nil
}

func decodeBlob(item contentItem, uri string) (payload.Payload, error) {
	data, err := base64.StdEncoding.DecodeString(item.Blob)
	if err != nil {
		return payload.Payload{}, fmt.Errorf("decode blob: %w", err)
	}
	if payload.IsParquetMime(item.MimeType, uri) {
		f, err := os.CreateTemp("", "mcp-resource-*.parquet")
		if err != nil {
			return payload.Payload{}, fmt.Errorf("create temp parquet file: %w", err)
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			os.Remove(f.Name())
			return payload.Payload{}, fmt.Errorf("write temp parquet file: %w", err)
		}
		return payload.ParquetFile(f.Name()), nil
	}
	return payload.Binary(data), nil
}

func decodeText(text string) payload.Payload {
	var asList []map[string]interface{}
	if err := json.Unmarshal([]byte(text), &asList); err == nil {
		return payload.Rows(asList)
	}
	var asObject map[string]interface{}
	if err := json.Unmarshal([]byte(text), &asObject); err == nil {
		return payload.Object(asObject)
	}
	return payload.Text(text)
}

// CallTool calls tools/call.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	return c.Request(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	}, defaultRequestTimeout)
}
