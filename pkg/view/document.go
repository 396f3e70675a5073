// Package view holds the embedded chat view: its self-contained document and a Go
// model of the same state machine for clients that do not run the script.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

//go:embed static/*
var staticFS embed.FS

// DocumentOptions carry the user-visible strings of the panel.
type DocumentOptions struct {
	Lang        string `mapstructure:"lang" yaml:"lang"`
	Title       string `mapstructure:"title" yaml:"title"`
	Heading     string `mapstructure:"heading" yaml:"heading"`
	Welcome     string `mapstructure:"welcome" yaml:"welcome"`
	Placeholder string `mapstructure:"placeholder" yaml:"placeholder"`
	SendLabel   string `mapstructure:"send-label" yaml:"send-label"`
}

func DefaultDocumentOptions() DocumentOptions {
	return DocumentOptions{
		Lang:        "en",
		Title:       "AI Chat",
		Heading:     "🤖 AI chat assistant",
		Welcome:     "Type a message below to start the conversation",
		Placeholder: "Type a message... (Enter to send)",
		SendLabel:   "Send",
	}
}

func (o DocumentOptions) withDefaults() DocumentOptions {
	d := DefaultDocumentOptions()
	if o.Lang == "" {
		o.Lang = d.Lang
	}
	if o.Title == "" {
		o.Title = d.Title
	}
	if o.Heading == "" {
		o.Heading = d.Heading
	}
	if o.Welcome == "" {
		o.Welcome = d.Welcome
	}
	if o.Placeholder == "" {
		o.Placeholder = d.Placeholder
	}
	if o.SendLabel == "" {
		o.SendLabel = d.SendLabel
	}
	return o
}

type documentData struct {
	DocumentOptions
	Nonce  string
	Styles template.CSS
	Script template.JS
}

// Renderer produces the chat document. Each render gets a fresh CSP nonce.
type Renderer struct {
	opts   DocumentOptions
	tmpl   *template.Template
	styles template.CSS
	script template.JS
	nonce  func() string
}

func NewRenderer(opts DocumentOptions) (*Renderer, error) {
	tmpl, err := template.ParseFS(staticFS, "static/chat.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse chat template")
	}
	css, err := staticFS.ReadFile("static/chat.css")
	if err != nil {
		return nil, errors.Wrap(err, "read chat styles")
	}
	js, err := Script()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		opts:   opts.withDefaults(),
		tmpl:   tmpl,
		styles: template.CSS(css),
		script: template.JS(js),
		nonce:  newNonce,
	}, nil
}

// Document renders the complete markup/style/script bundle.
func (r *Renderer) Document() (string, error) {
	var buf bytes.Buffer
	err := r.tmpl.ExecuteTemplate(&buf, "chat.html", documentData{
		DocumentOptions: r.opts,
		Nonce:           r.nonce(),
		Styles:          r.styles,
		Script:          r.script,
	})
	if err != nil {
		return "", errors.Wrap(err, "execute chat template")
	}
	return buf.String(), nil
}

func (r *Renderer) Options() DocumentOptions { return r.opts }

// Script returns the view script source.
func Script() (string, error) {
	b, err := staticFS.ReadFile("static/chat.js")
	if err != nil {
		return "", errors.Wrap(err, "read chat script")
	}
	return string(b), nil
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
