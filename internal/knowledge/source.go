// Package knowledge answers common visitor questions from local data,
// before anything is sent to a generative backend.
package knowledge

import (
	"context"
	"sync"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
	"github.com/hammamikhairi/omnis/internal/phrase"
)

// Entry is one canned answer. It matches a question that contains at
// least one of its keyword phrases as whole words.
type Entry struct {
	Keywords []string `yaml:"keywords"`
	Answer   string   `yaml:"answer"`
}

var _ domain.KnowledgeSource = (*MemorySource)(nil)

// MemorySource holds entries in memory. Safe for concurrent use.
type MemorySource struct {
	mu      sync.RWMutex
	entries []Entry
	log     *logger.Logger
}

// NewMemorySource creates a source with the built-in entries followed
// by extra ones.
func NewMemorySource(log *logger.Logger, extra ...Entry) *MemorySource {
	s := &MemorySource{log: log}
	s.seed()
	s.Add(extra...)
	return s
}

// Add appends entries. Entries without keywords or answer are skipped.
func (s *MemorySource) Add(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if len(e.Keywords) == 0 || e.Answer == "" {
			continue
		}
		s.entries = append(s.entries, e)
	}
}

// Len returns the number of entries.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Answer returns the answer of the entry whose keywords cover the most
// words of the question. Ties go to the entry added first.
func (s *MemorySource) Answer(_ context.Context, question string) (string, bool) {
	tokens := phrase.Tokenize(question)
	if len(tokens) == 0 {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best, bestScore := -1, 0
	for i, e := range s.entries {
		score := 0
		for _, k := range e.Keywords {
			if phrase.Contains(tokens, k) {
				score += len(phrase.Tokenize(k))
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", false
	}
	s.log.Debug("knowledge: %q matched entry %d (score=%d)", question, best, bestScore)
	return s.entries[best].Answer, true
}

// seed loads the answers every kiosk ships with. Schools add their own
// through the profile.
func (s *MemorySource) seed() {
	s.entries = append(s.entries,
		Entry{
			Keywords: []string{"your name", "who are you", "what are you"},
			Answer:   "I am OMNIS, the welcome robot of this school.",
		},
		Entry{
			Keywords: []string{"what can you do", "help me", "how do you work"},
			Answer:   "I greet visitors, remember faces and answer questions. Say my name, then ask me anything.",
		},
		Entry{
			Keywords: []string{"how are you", "how is it going"},
			Answer:   "I am doing great, thank you for asking.",
		},
	)
}
