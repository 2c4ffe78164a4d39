package services

import (
	"strings"
	"time"

	"bookingledger/config"
	"bookingledger/utils"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Options - общие зависимости и настройки сервисов
type Options struct {
	Directory     Directory
	Notifier      Notifier
	Roles         RoleResolver
	Rounding      RoundingPolicy
	Currency      string
	LateFeeRate   decimal.Decimal
	LateAfterDays int
	Metrics       *utils.Metrics
	Now           func() time.Time
}

// OptionsFromConfig собирает Options из конфигурации
func OptionsFromConfig(cfg *config.Config, directory Directory, notifier Notifier) (Options, error) {
	rounding, err := ParseRoundingPolicy(cfg.Scheduling.InstallmentRounding)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Directory:     directory,
		Notifier:      notifier,
		Roles:         StaticRoleResolver{Admins: cfg.Roles.Admins},
		Rounding:      rounding,
		Currency:      strings.ToUpper(cfg.Scheduling.Currency),
		LateFeeRate:   decimal.NewFromFloat(cfg.Scheduling.LateFeeRate),
		LateAfterDays: cfg.Scheduling.LateAfterDays,
		Metrics:       utils.GetMetrics(),
		Now:           time.Now,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.Rounding == "" {
		o.Rounding = RoundingKeepSurplus
	}
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Metrics == nil {
		o.Metrics = utils.GetMetrics()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Roles == nil {
		o.Roles = StaticRoleResolver{}
	}
	return o
}

func (o Options) publisher() *publisher {
	return &publisher{notifier: o.Notifier, roles: o.Roles, now: o.Now}
}

// formatValidationErrors превращает ошибки validator в ValidationError
func formatValidationErrors(op string, err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return validationError(op, "%v", err)
	}
	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
		case "gt":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть больше "+e.Param())
		case "min", "gte":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть не меньше "+e.Param())
		case "max":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть не больше "+e.Param())
		case "oneof":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть одним из: "+e.Param())
		default:
			errorMessages = append(errorMessages, "поле "+e.Field()+" не прошло проверку "+e.Tag())
		}
	}
	return validationError(op, "%s", strings.Join(errorMessages, "; "))
}
