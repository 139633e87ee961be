package dto

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/smartattend/integrity-api/internal/models"
)

// RegisterValidations installs the domain enum validators referenced by
// binding tags in this package. Call once at startup, before routes are
// served.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("flag_type", func(fl validator.FieldLevel) bool {
		return models.FlagType(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("flag_severity", func(fl validator.FieldLevel) bool {
		return models.FlagSeverity(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("ledger_scope", func(fl validator.FieldLevel) bool {
		return models.LedgerScope(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("ledger_action", func(fl validator.FieldLevel) bool {
		return models.LedgerActionType(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("export_format", func(fl validator.FieldLevel) bool {
		return models.ExportFormat(strings.ToLower(fl.Field().String())).Valid()
	})
}
