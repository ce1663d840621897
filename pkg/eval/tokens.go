package eval

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

// NewTikTokenCounter returns a TokenCounter backed by tiktoken-go for the
// given model. Models tiktoken does not know fall back to cl100k_base.
func NewTikTokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}
