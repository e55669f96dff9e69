// Package templates provides the embedded stage templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.toml (or prompt.tmpl)
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/stockcrew/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed *.toml *.tmpl
var fs embed.FS

const layoutName = "prompt.tmpl"

// StageTemplate is the per-stage persona and task definition.
type StageTemplate struct {
	Stage            string   `toml:"stage"`
	Role             string   `toml:"role"`
	Goal             string   `toml:"goal"` // text/template, parameterised by .Ticker
	Backstory        string   `toml:"backstory"`
	Task             string   `toml:"task"` // text/template, parameterised by .Ticker
	ExpectedOutput   string   `toml:"expected_output"`
	Requires         []string `toml:"requires"`          // stage keys that must be present in the context
	SnapshotSections []string `toml:"snapshot_sections"` // profile, fundamentals, financials, technicals, risk, news
}

// GetTemplate loads a stage template by name with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
func GetTemplate(name string, templatesDir string) (*StageTemplate, error) {
	data, err := readTemplate(name+".toml", templatesDir)
	if err != nil {
		return nil, err
	}
	var t StageTemplate
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	return &t, nil
}

// ListEmbeddedTemplates returns names of all embedded stage templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if name := entry.Name(); !entry.IsDir() && strings.HasSuffix(name, ".toml") {
			names = append(names, strings.TrimSuffix(name, ".toml"))
		}
	}
	return names, nil
}

func readTemplate(file string, templatesDir string) ([]byte, error) {
	if templatesDir != "" {
		if data, err := os.ReadFile(filepath.Join(templatesDir, file)); err == nil {
			return data, nil
		}
	}
	data, err := fs.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", file)
	}
	return data, nil
}

type compiledStage struct {
	def      *StageTemplate
	goal     *template.Template
	task     *template.Template
	requires []models.StageKind
}

// Engine renders stage prompts. It is immutable after construction and safe
// for concurrent use.
type Engine struct {
	layout *template.Template
	stages map[models.StageKind]*compiledStage
}

// NewEngine loads and compiles the layout and one template per stage.
func NewEngine(templatesDir string) (*Engine, error) {
	layoutSrc, err := readTemplate(layoutName, templatesDir)
	if err != nil {
		return nil, err
	}
	layout, err := template.New(layoutName).Option("missingkey=error").Parse(string(layoutSrc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", layoutName, err)
	}

	e := &Engine{layout: layout, stages: make(map[models.StageKind]*compiledStage)}
	for _, stage := range models.AllStages() {
		def, err := GetTemplate(stage.String(), templatesDir)
		if err != nil {
			return nil, err
		}
		compiled, err := compileStage(stage, def)
		if err != nil {
			return nil, err
		}
		e.stages[stage] = compiled
	}
	return e, nil
}

func compileStage(stage models.StageKind, def *StageTemplate) (*compiledStage, error) {
	c := &compiledStage{def: def}

	var err error
	if c.goal, err = template.New(stage.String() + ".goal").Option("missingkey=error").Parse(def.Goal); err != nil {
		return nil, &models.TemplateError{Stage: stage, Err: err}
	}
	if c.task, err = template.New(stage.String() + ".task").Option("missingkey=error").Parse(def.Task); err != nil {
		return nil, &models.TemplateError{Stage: stage, Err: err}
	}

	for _, key := range def.Requires {
		req, err := models.ParseStageKind(key)
		if err != nil {
			return nil, &models.TemplateError{Stage: stage, Err: err}
		}
		if req >= stage {
			return nil, &models.TemplateError{Stage: stage, Err: fmt.Errorf("requires %s, which does not run before it", req)}
		}
		c.requires = append(c.requires, req)
	}
	for _, section := range def.SnapshotSections {
		if _, ok := snapshotSections[section]; !ok {
			return nil, &models.TemplateError{Stage: stage, Err: fmt.Errorf("unknown snapshot section %q", section)}
		}
	}
	return c, nil
}

type priorOutput struct {
	Title  string
	Output string
}

type promptData struct {
	Ticker         string
	Role           string
	Goal           string
	Backstory      string
	Task           string
	ExpectedOutput string
	MarketData     string
	Prior          []priorOutput
}

// Render builds the prompt for stage. Every output recorded for an earlier
// stage is included verbatim under its stage title; outputs of the same or
// later stages are never included. Rendering is pure: identical inputs give
// identical prompts.
func (e *Engine) Render(stage models.StageKind, ticker string, actx *models.AnalysisContext, snapshot *models.MarketSnapshot) (string, error) {
	compiled, ok := e.stages[stage]
	if !ok {
		return "", &models.TemplateError{Stage: stage, Err: fmt.Errorf("no template for stage")}
	}

	var missing []models.StageKind
	for _, req := range compiled.requires {
		if !actx.Has(req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return "", &models.TemplateError{Stage: stage, Missing: missing}
	}

	vars := struct{ Ticker string }{Ticker: ticker}
	goal, err := execute(compiled.goal, vars)
	if err != nil {
		return "", &models.TemplateError{Stage: stage, Err: err}
	}
	task, err := execute(compiled.task, vars)
	if err != nil {
		return "", &models.TemplateError{Stage: stage, Err: err}
	}
	marketData, err := renderSnapshot(snapshot, compiled.def.SnapshotSections)
	if err != nil {
		return "", &models.TemplateError{Stage: stage, Err: err}
	}

	data := promptData{
		Ticker:         ticker,
		Role:           compiled.def.Role,
		Goal:           goal,
		Backstory:      strings.TrimSpace(compiled.def.Backstory),
		Task:           strings.TrimSpace(task),
		ExpectedOutput: strings.TrimSpace(compiled.def.ExpectedOutput),
		MarketData:     marketData,
	}
	for _, entry := range actx.Entries() {
		if entry.Stage >= stage {
			continue
		}
		data.Prior = append(data.Prior, priorOutput{Title: entry.Stage.Title(), Output: entry.Output})
	}

	prompt, err := execute(e.layout, data)
	if err != nil {
		return "", &models.TemplateError{Stage: stage, Err: err}
	}
	return prompt, nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type profileView struct {
	Ticker   string `yaml:"ticker"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
	Sector   string `yaml:"sector,omitempty"`
	Industry string `yaml:"industry,omitempty"`
	Currency string `yaml:"currency,omitempty"`
	AsOf     string `yaml:"as_of"`
}

var snapshotSections = map[string]func(s *models.MarketSnapshot) any{
	"profile": func(s *models.MarketSnapshot) any {
		return profileView{
			Ticker:   s.Ticker,
			Symbol:   s.Symbol,
			Name:     s.Fundamentals.Name,
			Exchange: s.Fundamentals.Exchange,
			Sector:   s.Fundamentals.Sector,
			Industry: s.Fundamentals.Industry,
			Currency: s.Currency,
			AsOf:     s.FetchedAt.Format("2006-01-02"),
		}
	},
	"fundamentals": func(s *models.MarketSnapshot) any { return s.Fundamentals },
	"financials": func(s *models.MarketSnapshot) any {
		if s.Financials == nil {
			return nil
		}
		return s.Financials
	},
	"technicals": func(s *models.MarketSnapshot) any { return s.Technicals },
	"risk":       func(s *models.MarketSnapshot) any { return s.Risk },
	"news": func(s *models.MarketSnapshot) any {
		if len(s.News) == 0 {
			return nil
		}
		return s.News
	},
}

// renderSnapshot marshals the selected snapshot views to YAML. Map keys are
// sorted by yaml.v3, so output is stable.
func renderSnapshot(snapshot *models.MarketSnapshot, sections []string) (string, error) {
	if snapshot == nil || len(sections) == 0 {
		return "", nil
	}
	views := make(map[string]any, len(sections))
	for _, section := range sections {
		if view := snapshotSections[section](snapshot); view != nil {
			views[section] = view
		}
	}
	if len(views) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(views)
	if err != nil {
		return "", fmt.Errorf("failed to marshal market data: %w", err)
	}
	return string(out), nil
}
