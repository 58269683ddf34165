// Package campaign owns the static campaign configuration: the creator
// registry (handle → aliases, discount code), matcher thresholds and feature
// flags, and the reply templates. A Registry is built once from the YAML
// files, validated, and read-only afterward; hot reload atomically swaps the
// whole Registry via Store, keeping the previous one on any load error.
package campaign

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Template keys consumed by the decision engine.
const (
	TemplateOutOfScope  = "out_of_scope"
	TemplateAskCreator  = "ask_creator"
	TemplateIssueCode   = "issue_code"
	TemplateAlreadySent = "already_sent_no_resend"
)

// Creator is one registry entry: the aliases used for matching and the
// one-time discount code issued on completion.
type Creator struct {
	Aliases []string `yaml:"aliases" validate:"required,min=1,dive,required"`
	Code    string   `yaml:"code"    validate:"required"`
}

// Thresholds holds the tunable matcher thresholds.
type Thresholds struct {
	// FuzzyAccept is the minimum partial-overlap similarity, in [0,1], at
	// which a fuzzy alias match is accepted.
	FuzzyAccept float64 `yaml:"fuzzy_accept" validate:"gte=0,lte=1"`
}

// Flags enables or disables matcher tiers.
type Flags struct {
	EnableFuzzyMatching bool `yaml:"enable_fuzzy_matching"`
	EnableLLMFallback   bool `yaml:"enable_llm_fallback"`
}

// campaignFile mirrors the campaign YAML document.
type campaignFile struct {
	Creators   map[string]Creator `yaml:"creators"   validate:"required,min=1,dive"`
	Thresholds Thresholds         `yaml:"thresholds"`
	Flags      Flags              `yaml:"flags"`
}

// templatesFile mirrors the templates YAML document.
type templatesFile struct {
	Replies map[string]string `yaml:"replies" validate:"required"`
}

// Registry is the immutable campaign snapshot: creators, thresholds, flags,
// and reply templates, plus derived lookup structures for the matcher. Safe
// for concurrent use once constructed.
type Registry struct {
	creators   map[string]Creator
	thresholds Thresholds
	flags      Flags
	templates  map[string]string

	// handles is the sorted creator handle list (deterministic iteration).
	handles []string
	// aliasToCreator maps each lower-cased alias to its creator handle.
	aliasToCreator map[string]string
	// aliases is the sorted lower-cased alias list.
	aliases []string
	// tokens is the set of lower-cased word tokens (len >= 3) drawn from
	// handles and aliases, used by the matcher pre-gates.
	tokens map[string]struct{}
}

var validate = validator.New()

// Load reads, validates, and indexes the campaign and templates YAML files.
func Load(campaignPath, templatesPath string) (*Registry, error) {
	var cf campaignFile
	if err := readYAML(campaignPath, &cf); err != nil {
		return nil, fmt.Errorf("campaign config: %w", err)
	}
	if err := validate.Struct(cf); err != nil {
		return nil, fmt.Errorf("campaign config: %w", err)
	}

	var tf templatesFile
	if err := readYAML(templatesPath, &tf); err != nil {
		return nil, fmt.Errorf("templates config: %w", err)
	}
	if err := validate.Struct(tf); err != nil {
		return nil, fmt.Errorf("templates config: %w", err)
	}
	for _, key := range []string{TemplateOutOfScope, TemplateAskCreator, TemplateIssueCode, TemplateAlreadySent} {
		if strings.TrimSpace(tf.Replies[key]) == "" {
			return nil, fmt.Errorf("templates config: missing reply template %q", key)
		}
	}

	return newRegistry(cf, tf.Replies), nil
}

func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

func newRegistry(cf campaignFile, templates map[string]string) *Registry {
	r := &Registry{
		creators:       cf.Creators,
		thresholds:     cf.Thresholds,
		flags:          cf.Flags,
		templates:      templates,
		aliasToCreator: make(map[string]string),
		tokens:         make(map[string]struct{}),
	}

	for handle, c := range cf.Creators {
		r.handles = append(r.handles, handle)
		addTokens(r.tokens, handle)
		for _, alias := range c.Aliases {
			a := strings.ToLower(strings.TrimSpace(alias))
			if a == "" {
				continue
			}
			if _, dup := r.aliasToCreator[a]; !dup {
				r.aliasToCreator[a] = handle
				r.aliases = append(r.aliases, a)
			}
			addTokens(r.tokens, a)
		}
	}
	sort.Strings(r.handles)
	sort.Strings(r.aliases)
	return r
}

// addTokens splits s on non-alphanumeric boundaries (underscore kept) and
// records every token of length >= 3.
func addTokens(set map[string]struct{}, s string) {
	s = strings.ToLower(s)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if len(tok) >= 3 {
			set[tok] = struct{}{}
		}
		// Compound aliases also register their underscore-joined form split
		// apart ("casey_neistat" → "casey", "neistat").
		for _, part := range strings.Split(tok, "_") {
			if len(part) >= 3 {
				set[part] = struct{}{}
			}
		}
	}
}

// Handles returns the sorted creator handle list.
func (r *Registry) Handles() []string { return r.handles }

// Aliases returns the sorted lower-cased alias list.
func (r *Registry) Aliases() []string { return r.aliases }

// CreatorOfAlias resolves a lower-cased alias to its creator handle.
func (r *Registry) CreatorOfAlias(alias string) (string, bool) {
	h, ok := r.aliasToCreator[alias]
	return h, ok
}

// Code returns the discount code configured for handle.
func (r *Registry) Code(handle string) (string, bool) {
	c, ok := r.creators[handle]
	return c.Code, ok
}

// AliasesOf returns the configured aliases for handle.
func (r *Registry) AliasesOf(handle string) []string {
	return r.creators[handle].Aliases
}

// HasToken reports whether tok is a known creator token (pre-gate lookup).
func (r *Registry) HasToken(tok string) bool {
	_, ok := r.tokens[tok]
	return ok
}

// FuzzyAccept returns the configured fuzzy acceptance threshold.
func (r *Registry) FuzzyAccept() float64 { return r.thresholds.FuzzyAccept }

// FuzzyEnabled reports whether the fuzzy matcher tier is enabled.
func (r *Registry) FuzzyEnabled() bool { return r.flags.EnableFuzzyMatching }

// LLMEnabled reports whether the external-classifier fallback is enabled.
func (r *Registry) LLMEnabled() bool { return r.flags.EnableLLMFallback }

// Template returns the raw reply template for key.
func (r *Registry) Template(key string) string { return r.templates[key] }

// RenderIssueCode fills the issue_code template with the creator handle and
// discount code. Placeholders follow the campaign config convention:
// {creator_handle} and {discount_code}.
func (r *Registry) RenderIssueCode(handle, code string) string {
	return strings.NewReplacer(
		"{creator_handle}", handle,
		"{discount_code}", code,
	).Replace(r.templates[TemplateIssueCode])
}

// Store holds the active Registry and supports atomic replacement. Readers
// always observe a complete, validated snapshot.
type Store struct {
	current atomic.Pointer[Registry]

	campaignPath  string
	templatesPath string
}

// NewStore loads the initial Registry from the given paths.
func NewStore(campaignPath, templatesPath string) (*Store, error) {
	reg, err := Load(campaignPath, templatesPath)
	if err != nil {
		return nil, err
	}
	s := &Store{campaignPath: campaignPath, templatesPath: templatesPath}
	s.current.Store(reg)
	return s, nil
}

// Current returns the active Registry snapshot.
func (s *Store) Current() *Registry { return s.current.Load() }

// Reload re-reads both YAML files and atomically swaps in the new Registry.
// On any error the previous Registry stays active.
func (s *Store) Reload() error {
	reg, err := Load(s.campaignPath, s.templatesPath)
	if err != nil {
		return err
	}
	s.current.Store(reg)
	return nil
}
