package sim

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sandevgo/rumormill/internal/core"
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		var err error
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic(fmt.Sprintf("failed to load cl100k_base encoding: %v", err))
		}
	})
	return tk
}

func countTokens(text string) int {
	return len(getTokenizer().Encode(text, nil, nil))
}

// historyWithinBudget trims the exchange thread to the newest lines whose
// combined token count fits the prompt budget. Older lines fall off first;
// a single oversized line is kept alone rather than leaving the prompt
// without any recent exchange.
func historyWithinBudget(thread []core.ExchangeLine, budget int) []core.ExchangeLine {
	if len(thread) == 0 || budget <= 0 {
		return nil
	}

	used := 0
	start := len(thread)
	for i := len(thread) - 1; i >= 0; i-- {
		cost := countTokens(thread[i].Speaker + ": " + thread[i].Content)
		if used+cost > budget && start < len(thread) {
			break
		}
		used += cost
		start = i
		if used > budget {
			break
		}
	}

	out := make([]core.ExchangeLine, len(thread)-start)
	copy(out, thread[start:])
	return out
}
