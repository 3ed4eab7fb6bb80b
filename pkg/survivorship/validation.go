package survivorship

import (
	"strings"

	"github.com/go-playground/validator/v10"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// logicValidator is implemented by resolvers that can check logic ahead of a merge
type logicValidator interface {
	Validate(logic string) error
}

// RuleValidator checks survivorship rules before they are stored
type RuleValidator struct {
	validate *validator.Validate
	custom   CustomResolver
}

func NewRuleValidator(custom CustomResolver) *RuleValidator {
	if custom == nil {
		custom = NewExpressionResolver(nil)
	}
	return &RuleValidator{
		validate: validator.New(),
		custom:   custom,
	}
}

// Validate returns an InvalidOperationError describing every problem with the rule
func (v *RuleValidator) Validate(rule *models.SurvivorshipRule) error {
	if rule == nil {
		return fernerrors.NewInvalidOperationError("survivorship rule", "rule is required")
	}

	var problems []string
	if err := v.validate.Struct(rule); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				problems = append(problems, fe.Namespace()+" failed '"+fe.Tag()+"'")
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if rule.UsesCustom() {
		switch {
		case rule.CustomLogic == nil || strings.TrimSpace(*rule.CustomLogic) == "":
			problems = append(problems, "custom_logic is required when a field uses CUSTOM")
		default:
			if lv, ok := v.custom.(logicValidator); ok {
				if err := lv.Validate(*rule.CustomLogic); err != nil {
					problems = append(problems, err.Error())
				}
			}
		}
	}

	if len(problems) > 0 {
		return fernerrors.NewInvalidOperationError("survivorship rule", "%s", strings.Join(problems, "; "))
	}
	return nil
}
