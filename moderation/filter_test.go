package moderation

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// The dictionary avoids short words that would hit inside others ("he" in "The")
func TestFilter_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	filter, err := NewFilter(log, []string{"badger", "snake", "mushroom"}, DefaultMask)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Repeated word",
			input:    "badger badger",
			expected: "****** ******",
			words:    []string{"badger", "badger"},
		},
		{
			name:     "Leet speak with inner punctuation",
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and dashes",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accented text around a match",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Trailing punctuation is kept",
			input:    "I love badger!",
			expected: "I love ******!",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "Chat rooms are fun",
			expected: "Chat rooms are fun",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			req.Equal(tt.expected, filter.Censor(tt.input))
			req.Equal(tt.words, filter.Matches(tt.input))
		})
	}
}

func TestFilter_Ignores_Noise_Words(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a dictionary polluted with punctuation only entries
	filter, err := NewFilter(log, []string{"...", ",,,", "", "badger"}, 0)
	req.NoError(err)

	// Then real words are still censored with the default mask
	req.Equal("The ****** is safe", filter.Censor("The badger is safe"))

	// And punctuation in messages is left alone
	req.Equal("Hello ...", filter.Censor("Hello ..."))
	req.Nil(filter.Matches("Hello ..."))
}

func TestFilter_Empty_Dictionary(t *testing.T) {
	req := require.New(t)
	filter, err := NewFilter(slog.Default(), nil, '#')
	req.NoError(err)

	req.Equal("anything goes", filter.Censor("anything goes"))
}

func TestWords_Store_And_Load(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	// Given words stored with mixed case and blanks
	req.NoError(StoreWords(db, "Badger", " ", "snake", "badger"))

	// When they are loaded
	words, err := LoadWords(db)

	// Then each word appears once, lower cased, in key order
	req.NoError(err)
	req.Equal([]string{"badger", "snake"}, words)

	filter, err := NewFilter(slog.Default(), words, DefaultMask)
	req.NoError(err)
	req.Equal("a ***** here", filter.Censor("a snake here"))
}

func BenchmarkFilter_Censor(b *testing.B) {
	words := make([]string, 10_000)
	for i := range words {
		words[i] = fmt.Sprintf("word%dx", i)
	}
	filter, err := NewFilter(slog.Default(), words, DefaultMask)
	if err != nil {
		b.Fatal(err)
	}
	text := "a fairly ordinary chat line with word42x hidden inside it"
	b.ResetTimer()
	for range b.N {
		_ = filter.Censor(text)
	}
}
