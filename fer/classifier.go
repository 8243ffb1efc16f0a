// Package fer provides the facial-expression-recognition client. The model
// runs behind a hosted inference API; this package only ships face crops over
// HTTP and normalizes the predictions.
package fer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/classlens/backend/engagement"
)

const modelLoadingRetryDelay = 2 * time.Second

// Prediction is the top emotion returned by the model for one face crop.
type Prediction struct {
	Emotion string
	Score   float64
}

// Classifier predicts the emotion on a single face crop.
type Classifier interface {
	Classify(ctx context.Context, faceJPEG []byte) (Prediction, error)
}

// apiPrediction mirrors one entry of the inference API response array.
type apiPrediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// HuggingFaceClassifier calls a hosted image-classification model endpoint.
type HuggingFaceClassifier struct {
	client     *http.Client
	modelURL   string
	apiToken   string
	maxRetries int
}

// NewHuggingFaceClassifier builds a classifier for the given model endpoint.
// timeout bounds each HTTP attempt; maxRetries covers transient failures and
// the API's 503 model-loading responses.
func NewHuggingFaceClassifier(modelURL, apiToken string, timeout time.Duration, maxRetries int) *HuggingFaceClassifier {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &HuggingFaceClassifier{
		client:     &http.Client{Timeout: timeout},
		modelURL:   modelURL,
		apiToken:   apiToken,
		maxRetries: maxRetries,
	}
}

// Classify sends the face crop to the model and returns the top prediction.
// The caller's context bounds the whole attempt sequence.
func (c *HuggingFaceClassifier) Classify(ctx context.Context, faceJPEG []byte) (Prediction, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Prediction{}, err
		}

		pred, retryable, err := c.classifyOnce(ctx, faceJPEG)
		if err == nil {
			return pred, nil
		}
		lastErr = err
		if !retryable {
			return Prediction{}, err
		}

		if attempt < c.maxRetries-1 {
			select {
			case <-time.After(modelLoadingRetryDelay):
			case <-ctx.Done():
				return Prediction{}, ctx.Err()
			}
		}
	}

	return Prediction{}, fmt.Errorf("classification failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *HuggingFaceClassifier) classifyOnce(ctx context.Context, faceJPEG []byte) (Prediction, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(faceJPEG))
	if err != nil {
		return Prediction{}, false, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// network errors and client timeouts are worth retrying
		return Prediction{}, true, fmt.Errorf("error calling inference API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Prediction{}, true, fmt.Errorf("error reading inference response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusServiceUnavailable:
		// the hosted model is still loading; retry after a short wait
		log.Printf("fer: model loading (503), will retry")
		return Prediction{}, true, fmt.Errorf("model is loading")
	default:
		return Prediction{}, false, fmt.Errorf("inference API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var predictions []apiPrediction
	if err := json.Unmarshal(body, &predictions); err != nil {
		return Prediction{}, false, fmt.Errorf("error unmarshaling inference response: %w", err)
	}

	return topPrediction(predictions), false, nil
}

// topPrediction normalizes labels to lowercase and picks the highest score.
// An empty prediction list yields the unknown emotion with score zero.
func topPrediction(predictions []apiPrediction) Prediction {
	if len(predictions) == 0 {
		return Prediction{Emotion: engagement.EmotionUnknown, Score: 0}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Score > predictions[j].Score
	})
	return Prediction{
		Emotion: strings.ToLower(predictions[0].Label),
		Score:   predictions[0].Score,
	}
}
