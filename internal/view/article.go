// Package view holds per-view state: the article view's state machine and
// request tokens that let newer requests supersede older ones.
package view

import (
	"errors"
	"fmt"
)

// Status is the article page loading state.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Tab selects between the original text and the summary.
type Tab string

const (
	TabOriginal Tab = "original"
	TabSummary  Tab = "summary"
)

// ErrTransition is returned for moves the current status does not allow.
var ErrTransition = errors.New("invalid view transition")

// ArticleView tracks what the article page shows. The zero value is not
// usable; call NewArticleView.
type ArticleView struct {
	Status   Status `json:"status"`
	Tab      Tab    `json:"tab"`
	ChatOpen bool   `json:"chatOpen"`
	Error    string `json:"error,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// NewArticleView starts loading on the original tab.
func NewArticleView() *ArticleView {
	return &ArticleView{Status: StatusLoading, Tab: TabOriginal}
}

func (v *ArticleView) transition(from, to Status) error {
	if v.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, v.Status, to)
	}
	v.Status = to
	return nil
}

// Loaded marks the article as ready to read.
func (v *ArticleView) Loaded() error {
	return v.transition(StatusLoading, StatusReady)
}

// Fail replaces the content with msg. Only a load can fail; errors from
// summarize or chat are reported by SetError instead.
func (v *ArticleView) Fail(msg string) error {
	if err := v.transition(StatusLoading, StatusError); err != nil {
		return err
	}
	v.Error = msg
	return nil
}

// SetError shows msg inline without leaving the ready state.
func (v *ArticleView) SetError(msg string) {
	v.Error = msg
}

// Reload is the only way out of the error state.
func (v *ArticleView) Reload() {
	*v = ArticleView{Status: StatusLoading, Tab: TabOriginal, ChatOpen: v.ChatOpen}
}

// SetSummary stores a generated summary and switches to it.
func (v *ArticleView) SetSummary(html string) error {
	if v.Status != StatusReady {
		return fmt.Errorf("%w: summary while %s", ErrTransition, v.Status)
	}
	v.Summary = html
	v.Tab = TabSummary
	v.Error = ""
	return nil
}

// ShowTab switches between original and summary. The summary tab needs a
// summary.
func (v *ArticleView) ShowTab(t Tab) error {
	if v.Status != StatusReady {
		return fmt.Errorf("%w: tab change while %s", ErrTransition, v.Status)
	}
	switch t {
	case TabOriginal:
	case TabSummary:
		if v.Summary == "" {
			return fmt.Errorf("%w: no summary yet", ErrTransition)
		}
	default:
		return fmt.Errorf("%w: unknown tab %q", ErrTransition, t)
	}
	v.Tab = t
	return nil
}

// ToggleChat opens or closes the chat panel in any status.
func (v *ArticleView) ToggleChat() {
	v.ChatOpen = !v.ChatOpen
}
