package telegram

import (
	"sync"
	"time"

	"medmap/api/internal/pipeline"
)

const (
	debounce  = 1200 * time.Millisecond
	maxPixels = 18_000_000
)

type chatOptions struct {
	passes int // 0 means the pipeline default
	debug  bool
}

// chatState holds per-chat settings and the last result, for the inline
// buttons.
type chatState struct {
	mu      sync.Mutex
	opts    map[int64]chatOptions
	results map[int64]pipeline.Result
	batches map[string]*photoBatch
}

func newChatState() *chatState {
	return &chatState{
		opts:    make(map[int64]chatOptions),
		results: make(map[int64]pipeline.Result),
		batches: make(map[string]*photoBatch),
	}
}

func (s *chatState) options(chatID int64) chatOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts[chatID]
}

func (s *chatState) toggleDebug(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.opts[chatID]
	o.debug = !o.debug
	s.opts[chatID] = o
	return o.debug
}

func (s *chatState) setPasses(chatID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.opts[chatID]
	o.passes = n
	s.opts[chatID] = o
}

func (s *chatState) remember(chatID int64, res pipeline.Result) {
	s.mu.Lock()
	s.results[chatID] = res
	s.mu.Unlock()
}

func (s *chatState) last(chatID int64) (pipeline.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[chatID]
	return res, ok
}

type photoBatch struct {
	chatID int64
	images [][]byte
	timer  *time.Timer
}

// addPhoto appends img to the batch under key and (re)arms its flush timer.
// It reports whether this is the first image of the batch.
func (s *chatState) addPhoto(key string, chatID int64, img []byte, flush func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[key]
	if !ok {
		b = &photoBatch{chatID: chatID}
		s.batches[key] = b
	}
	b.images = append(b.images, img)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(debounce, flush)
	return len(b.images) == 1
}

func (s *chatState) takeBatch(key string) (*photoBatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[key]
	if ok {
		delete(s.batches, key)
	}
	return b, ok
}
