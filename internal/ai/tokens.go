package ai

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenCounter picks the model's encoding, falling back to cl100k_base and
// then to ApproxCounter when no BPE data can be loaded.
func NewTokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return ApproxCounter{}
		}
	}
	return tiktokenCounter{enc: enc}
}

// TrimHistory drops the oldest messages until the remainder fits budget.
// A non-positive budget keeps everything.
func TrimHistory(history []Message, budget int, c TokenCounter) []Message {
	if budget <= 0 || c == nil {
		return history
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := c.Count(history[i].Content)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return history[start:]
}
