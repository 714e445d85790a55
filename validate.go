package starledger

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/starledger/id"
)

// newValidator builds the validator used for engine inputs. IDs validate
// as their string form, and "idprefix=mbr" checks the TypeID prefix.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if i, ok := field.Interface().(id.ID); ok {
			return i.String()
		}
		return nil
	}, id.ID{})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("idprefix", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || strings.HasPrefix(s, fl.Param()+"_")
	})

	return v
}

// check validates in and converts validator output into ValidationError
// values. More than one failure is returned as a MultiError.
func (l *Ledger) check(in any) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var me MultiError
	for _, fe := range verrs {
		me.Add(ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	if len(me.Errors) == 1 {
		return me.Errors[0]
	}
	return me
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "idprefix":
		return fmt.Sprintf("must be a %s_ id", fe.Param())
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "ne":
		return "must not be " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "timezone":
		return "must be an IANA time zone"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
