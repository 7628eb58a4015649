package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/aegis/consult/internal/contracts"
)

// ParseError describes why evaluator output was rejected
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// Is matches contracts.ErrParse
func (e *ParseError) Is(target error) bool {
	return target == contracts.ErrParse
}

func parseErrorf(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// wireSignal is the evaluator output schema
type wireSignal struct {
	Signal     string      `json:"signal" validate:"required,oneof=NO_TRADE SHORT_PUT_SPREAD SHORT_CALL_SPREAD IRON_CONDOR LONG_CALL_SPREAD LONG_PUT_SPREAD LONG_SHORT_COMBO SHORT_LONG_COMBO"`
	Target     string      `json:"target" validate:"required_unless=Signal NO_TRADE"`
	Params     *wireParams `json:"params" validate:"required_unless=Signal NO_TRADE"`
	Confidence *float64    `json:"confidence" validate:"required,gte=0,lte=1"`
	Reasoning  string      `json:"reasoning"`
}

type wireParams struct {
	Legs            []wireLeg `json:"legs" validate:"dive"`
	MaxRisk         float64   `json:"max_risk" validate:"gte=0"`
	CapitalRequired float64   `json:"capital_required" validate:"gte=0"`
}

type wireLeg struct {
	Action   string       `json:"action" validate:"required,oneof=SELL BUY"`
	Contract wireContract `json:"contract"`
	Quantity int          `json:"quantity" validate:"gte=1"`
	Price    float64      `json:"price" validate:"gte=0"`
}

type wireContract struct {
	Strike float64 `json:"strike" validate:"gt=0"`
	Right  string  `json:"right" validate:"required,oneof=C P"`
	Expiry string  `json:"expiry" validate:"required,len=8,datetime=20060102"`
}

// Normalizer turns untrusted evaluator output into a Signal.
// Anything outside the schema is rejected, never coerced.
// ⭐ SSOT: 평가 결과 파싱/검증은 여기서만
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewNormalizer creates a normalizer
func NewNormalizer() *Normalizer {
	v := validator.New()
	// 에러 메시지에 JSON 필드명 사용
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Normalizer{
		validate: v,
		now:      time.Now,
	}
}

// Parse validates raw output and returns the signal it describes.
// InstanceID, TemplateUsed and Timestamp are left for Normalize to stamp.
func (n *Normalizer) Parse(raw string) (*contracts.Signal, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	var w wireSignal
	if err := json.Unmarshal([]byte(obj), &w); err != nil {
		return nil, parseErrorf("malformed JSON: %v", err)
	}

	if err := n.validate.Struct(&w); err != nil {
		return nil, validationError(err)
	}

	signalType := contracts.SignalType(w.Signal)
	if signalType.IsActionable() && len(w.Params.Legs) == 0 {
		return nil, parseErrorf("params.legs must not be empty for %s", signalType)
	}

	sig := &contracts.Signal{
		Target:     w.Target,
		SignalType: signalType,
		Confidence: *w.Confidence,
		Reasoning:  w.Reasoning,
	}
	if w.Params != nil {
		sig.Params = contracts.SignalParams{
			Legs:            make([]contracts.Leg, 0, len(w.Params.Legs)),
			MaxRisk:         w.Params.MaxRisk,
			CapitalRequired: w.Params.CapitalRequired,
		}
		for _, l := range w.Params.Legs {
			sig.Params.Legs = append(sig.Params.Legs, contracts.Leg{
				Action: l.Action,
				Contract: contracts.Contract{
					Strike: l.Contract.Strike,
					Right:  l.Contract.Right,
					Expiry: l.Contract.Expiry,
				},
				Quantity: l.Quantity,
				Price:    l.Price,
			})
		}
	}
	return sig, nil
}

// Normalize parses raw output of an instance and stamps its provenance.
// An instance_id inside the output is ignored.
func (n *Normalizer) Normalize(instanceID, templateUsed, raw string) (*contracts.Signal, error) {
	sig, err := n.Parse(raw)
	if err != nil {
		return nil, err
	}
	sig.InstanceID = instanceID
	sig.TemplateUsed = templateUsed
	sig.Timestamp = n.now().UTC()
	return sig, nil
}

// validationError reports the first failed rule
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return parseErrorf("%v", err)
	}

	fe := ve[0]
	return parseErrorf("%s", fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	// Signal.params.legs[0].contract.right → params.legs[0].contract.right
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_unless":
		return fmt.Sprintf("%s is required unless signal is NO_TRADE", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %v)", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "len", "datetime":
		return fmt.Sprintf("%s must be a YYYYMMDD date", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
