package template

import (
	"fmt"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/exec"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/nikolalohinski/gonja/tokens"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// Reserved template variables
const (
	VarMarket     = "market"
	VarInstanceID = "instance_id"
)

// RenderError is a per-instance template failure.
// It matches contracts.ErrConfig with errors.Is.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %q: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Is makes every RenderError a configuration error
func (e *RenderError) Is(target error) bool {
	return target == contracts.ErrConfig
}

// Renderer binds instance parameters into templates.
// Syntax is Jinja: {{ name }}, {{ list|join(', ') }}, {% for x in xs %}, {{ obj|tojson }}.
// Undefined variables are errors.
// ⭐ SSOT: 템플릿 렌더링은 여기서만
type Renderer struct {
	env *gonja.Environment
}

// NewRenderer creates a renderer with strict undefined handling.
// Numbers print in their shortest round-trip form; lists and dicts print as JSON.
func NewRenderer() *Renderer {
	cfg := config.NewConfig()
	cfg.StrictUndefined = true // 누락 파라미터 = CONFIG_ERROR

	env := gonja.NewEnvironment(cfg, gonja.DefaultLoader)
	registerExactFilters(env.Filters)

	return &Renderer{env: env}
}

// Compiled is a parsed template, reusable for every instance of a run
type Compiled struct {
	id  string
	tpl *exec.Template
}

// Compile parses a template body.
// Every {{ ... }} output goes through the exact formatter, so nested objects print as JSON.
func (r *Renderer) Compile(tpl *contracts.Template) (*Compiled, error) {
	if tpl == nil {
		return nil, &RenderError{Err: contracts.ErrTemplateNotFound}
	}

	stream := tokens.NewStream(pipeOutputs(lex(tpl.Body)))
	p := parser.NewParser(tpl.ID, r.env.Config, stream)
	p.Statements = *r.env.Statements
	p.TemplateParser = r.env.EvalConfig.GetTemplate

	root, err := p.Parse()
	if err != nil {
		return nil, &RenderError{TemplateID: tpl.ID, Err: err}
	}

	parsed := &exec.Template{
		Name:   tpl.ID,
		Source: tpl.Body,
		Env:    r.env.EvalConfig,
		Tokens: stream,
		Parser: p,
		Root:   root,
	}
	return &Compiled{id: tpl.ID, tpl: parsed}, nil
}

// Render compiles and renders in one step
func (r *Renderer) Render(tpl *contracts.Template, params map[string]interface{}, vars Vars) (string, error) {
	compiled, err := r.Compile(tpl)
	if err != nil {
		return "", err
	}
	return compiled.Render(params, vars)
}

// Vars are the run-level variables available to every template
type Vars struct {
	InstanceID string
	Market     map[string]interface{}
}

// Render binds params into the template.
// Parameters are top-level names; market and instance_id are added unless a parameter already uses them.
func (c *Compiled) Render(params map[string]interface{}, vars Vars) (string, error) {
	ctx := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		ctx[k] = v
	}
	if _, ok := ctx[VarMarket]; !ok {
		market := vars.Market
		if market == nil {
			market = map[string]interface{}{}
		}
		ctx[VarMarket] = market
	}
	if _, ok := ctx[VarInstanceID]; !ok {
		ctx[VarInstanceID] = vars.InstanceID
	}

	out, err := c.tpl.Execute(ctx)
	if err != nil {
		return "", &RenderError{TemplateID: c.id, Err: err}
	}

	return out, nil
}
