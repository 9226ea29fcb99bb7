// Package usage implements the token accounting pipeline: counting,
// push to the platform service, and Redis-backed operation latency
// metrics.
package usage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter counts tokens for one model's encoding.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTokenCounter creates a counter for the model, falling back to the
// cl100k_base encoding for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSdk, "failed to load token encoding", err)
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = encoding
	encodingCacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count of text.
func (t *TokenCounter) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Model returns the model the counter was built for.
func (t *TokenCounter) Model() string { return t.model }
