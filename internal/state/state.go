package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bryan-buckman/termread/internal/llm"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/youtube"
	"github.com/google/uuid"
)

// Storage keys.
const (
	KeyFeeds          = "rssFeeds"
	KeyAPIKey         = "openRouterKey"
	KeyModel          = "aiModel"
	KeyPrompts        = "prompts"
	KeySelectedPrompt = "selectedPromptId"
	KeyDefaultPrompt  = "defaultPrompt"
	KeyTheme          = "terminalColor"
	KeySchemaVersion  = "schemaVersion"
)

// Defaults for fresh state.
const (
	SchemaVersion     = 1
	DefaultModel      = "openai/gpt-3.5-turbo"
	DefaultPromptName = "Default Prompt"
	NewPromptName     = "New Prompt"
)

// Errors returned by State mutations.
var (
	ErrDuplicateFeed   = errors.New("feed already added")
	ErrUnknownFeed     = errors.New("feed not found")
	ErrProtectedPrompt = errors.New("the default prompt cannot be changed or deleted")
	ErrUnknownPrompt   = errors.New("prompt not found")
	ErrInvalidTheme    = errors.New("theme out of range")
)

// State is the typed view over a KV. All methods are safe for concurrent
// use; read-modify-write sequences are serialized.
type State struct {
	kv KV

	mu     sync.Mutex
	subsMu sync.Mutex
	subs   map[string]map[int]func(string)
	nextID int
}

// New wraps kv and migrates data written by older versions.
func New(kv KV) (*State, error) {
	s := &State{kv: kv, subs: make(map[string]map[int]func(string))}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 0
	if raw, ok := s.kv.Get(KeySchemaVersion); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("schema version %q: %w", raw, err)
		}
		version = v
	}
	if version > SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, SchemaVersion)
	}

	if version < 1 {
		// Older clients stored whole fetched feeds, items included, without a type.
		feeds, err := s.feeds()
		if err != nil {
			return err
		}
		for i := range feeds {
			if feeds[i].Type == "" {
				feeds[i].Type = kindOf(feeds[i].URL)
			}
		}
		if err := s.setJSON(KeyFeeds, feeds); err != nil {
			return err
		}

		if _, ok := s.kv.Get(KeyPrompts); !ok {
			if err := s.setJSON(KeyPrompts, []model.Prompt{builtinPrompt()}); err != nil {
				return err
			}
		}
		if _, ok := s.kv.Get(KeySelectedPrompt); !ok {
			s.set(KeySelectedPrompt, model.DefaultPromptID)
		}
	}
	s.set(KeySchemaVersion, strconv.Itoa(SchemaVersion))
	return nil
}

func kindOf(url string) model.FeedKind {
	if youtube.IsYouTubeURL(url) {
		return model.KindYouTube
	}
	return model.KindRSS
}

func builtinPrompt() model.Prompt {
	return model.Prompt{ID: model.DefaultPromptID, Name: DefaultPromptName, Content: llm.DefaultPrompt}
}

// Subscribe calls fn with the new value whenever key is written through
// this State. fn runs synchronously and must not call back into the State.
// The returned func removes the subscription.
func (s *State) Subscribe(key string, fn func(value string)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(string))
	}
	s.subs[key][id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs[key], id)
	}
}

func (s *State) set(key, value string) {
	s.kv.Set(key, value)

	s.subsMu.Lock()
	fns := make([]func(string), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(value)
	}
}

func (s *State) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.set(key, string(data))
	return nil
}

func (s *State) getJSON(key string, v any) (bool, error) {
	raw, ok := s.kv.Get(key)
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// --- Feeds ---

func (s *State) feeds() ([]model.FeedSource, error) {
	feeds := []model.FeedSource{}
	if _, err := s.getJSON(KeyFeeds, &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

// Feeds returns the subscribed feeds in the order they were added.
func (s *State) Feeds() ([]model.FeedSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds()
}

// AddFeed appends src. URLs are compared after trimming whitespace.
func (s *State) AddFeed(src model.FeedSource) error {
	src.URL = strings.TrimSpace(src.URL)
	if src.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	if src.Type == "" {
		src.Type = kindOf(src.URL)
	}
	if src.Title == "" {
		src.Title = src.URL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, err := s.feeds()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(feeds, func(f model.FeedSource) bool { return f.URL == src.URL }) {
		return ErrDuplicateFeed
	}
	return s.setJSON(KeyFeeds, append(feeds, src))
}

// RemoveFeed drops the subscription with url.
func (s *State) RemoveFeed(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, err := s.feeds()
	if err != nil {
		return err
	}
	n := len(feeds)
	feeds = slices.DeleteFunc(feeds, func(f model.FeedSource) bool { return f.URL == url })
	if len(feeds) == n {
		return ErrUnknownFeed
	}
	return s.setJSON(KeyFeeds, feeds)
}

// --- LLM settings ---

// APIKey returns the stored gateway key.
func (s *State) APIKey() string {
	v, _ := s.kv.Get(KeyAPIKey)
	return v
}

// SetAPIKey stores the gateway key.
func (s *State) SetAPIKey(key string) {
	s.set(KeyAPIKey, strings.TrimSpace(key))
}

// Model returns the chosen model or DefaultModel.
func (s *State) Model() string {
	if v, ok := s.kv.Get(KeyModel); ok && v != "" {
		return v
	}
	return DefaultModel
}

// SetModel stores the chosen model.
func (s *State) SetModel(m string) {
	s.set(KeyModel, strings.TrimSpace(m))
}

// DefaultPromptText is the fallback instruction when no prompt is selected.
func (s *State) DefaultPromptText() string {
	if v, ok := s.kv.Get(KeyDefaultPrompt); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return llm.DefaultPrompt
}

// SetDefaultPromptText overrides the built-in prompt text.
func (s *State) SetDefaultPromptText(text string) {
	s.set(KeyDefaultPrompt, text)
}

// --- Prompts ---

func (s *State) prompts() ([]model.Prompt, error) {
	var prompts []model.Prompt
	if _, err := s.getJSON(KeyPrompts, &prompts); err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(prompts, isDefault) {
		prompts = append([]model.Prompt{builtinPrompt()}, prompts...)
	}
	return prompts, nil
}

func isDefault(p model.Prompt) bool { return p.ID == model.DefaultPromptID }

// Prompts returns all prompts; the default prompt is always present.
func (s *State) Prompts() ([]model.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts()
}

// AddPrompt stores a new prompt and selects it.
func (s *State) AddPrompt(name, content string) (model.Prompt, error) {
	if strings.TrimSpace(name) == "" {
		name = NewPromptName
	}
	p := model.Prompt{ID: uuid.NewString(), Name: name, Content: content}

	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, err := s.prompts()
	if err != nil {
		return model.Prompt{}, err
	}
	if err := s.setJSON(KeyPrompts, append(prompts, p)); err != nil {
		return model.Prompt{}, err
	}
	s.set(KeySelectedPrompt, p.ID)
	return p, nil
}

// UpdatePrompt replaces the prompt with the same id. The default prompt
// cannot be edited.
func (s *State) UpdatePrompt(p model.Prompt) error {
	if isDefault(p) {
		return ErrProtectedPrompt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, err := s.prompts()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(prompts, func(q model.Prompt) bool { return q.ID == p.ID })
	if i < 0 {
		return ErrUnknownPrompt
	}
	prompts[i] = p
	return s.setJSON(KeyPrompts, prompts)
}

// DeletePrompt removes a prompt. Deleting the selected prompt selects the
// default one.
func (s *State) DeletePrompt(id string) error {
	if id == model.DefaultPromptID {
		return ErrProtectedPrompt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, err := s.prompts()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(prompts, func(q model.Prompt) bool { return q.ID == id })
	if i < 0 {
		return ErrUnknownPrompt
	}
	if err := s.setJSON(KeyPrompts, slices.Delete(prompts, i, i+1)); err != nil {
		return err
	}
	if sel, _ := s.kv.Get(KeySelectedPrompt); sel == id {
		s.set(KeySelectedPrompt, model.DefaultPromptID)
	}
	return nil
}

// SelectPrompt makes id the active prompt.
func (s *State) SelectPrompt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, err := s.prompts()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(prompts, func(q model.Prompt) bool { return q.ID == id }) {
		return ErrUnknownPrompt
	}
	s.set(KeySelectedPrompt, id)
	return nil
}

// SelectedPrompt returns the selected prompt, falling back to the default
// one when the selection is missing or stale. The default prompt's content
// follows DefaultPromptText.
func (s *State) SelectedPrompt() (model.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompts, err := s.prompts()
	if err != nil {
		return model.Prompt{}, err
	}
	sel, _ := s.kv.Get(KeySelectedPrompt)
	i := slices.IndexFunc(prompts, func(q model.Prompt) bool { return q.ID == sel })
	if i < 0 {
		i = slices.IndexFunc(prompts, isDefault)
	}
	p := prompts[i]
	if isDefault(p) {
		p.Content = s.DefaultPromptText()
	}
	return p, nil
}

// --- Theme ---

// Theme returns the stored theme, or the default when none is valid.
func (s *State) Theme() model.Theme {
	t := model.DefaultTheme
	if ok, err := s.getJSON(KeyTheme, &t); !ok || err != nil || !t.Valid() {
		return model.DefaultTheme
	}
	return t
}

// SetTheme stores t if it is in range.
func (s *State) SetTheme(t model.Theme) error {
	if !t.Valid() {
		return ErrInvalidTheme
	}
	return s.setJSON(KeyTheme, t)
}
