// Package embedding is the HTTP client for the embedding service that
// classifies images, embeds text and finds faces.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/your-org/photolabel/internal/models"
)

// Classification is the result of classifying one image.
type Classification struct {
	Labels    models.Labels
	Embedding []float32
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type classifyResponse struct {
	Labels    models.Labels `json:"labels"`
	Embedding []float32     `json:"embedding"`
}

type facesResponse struct {
	Faces []models.DetectedFace `json:"faces"`
}

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Classify returns the top labels per taxonomy and the image embedding.
func (c *Client) Classify(ctx context.Context, image []byte) (*Classification, error) {
	body, err := c.postImage(ctx, "/classify/image", image)
	if err != nil {
		return nil, fmt.Errorf("classify image: %w", err)
	}

	var resp classifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse classify response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("classify image: empty embedding returned")
	}
	return &Classification{Labels: resp.Labels, Embedding: resp.Embedding}, nil
}

// DetectFaces returns every face found in the image. No faces is not an error.
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]models.DetectedFace, error) {
	body, err := c.postImage(ctx, "/faces/image", image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	var resp facesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse faces response: %w", err)
	}
	for i, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d has empty embedding", i)
		}
	}
	return resp.Faces, nil
}

// EmbedText embeds a search query into the image embedding space.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(textRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal text request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	var resp textResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse text embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Embedding, nil
}

func (c *Client) postImage(ctx context.Context, endpoint string, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
