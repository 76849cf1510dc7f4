// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/courier-backend/internal/model"
)

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// RecipientData exposes the placeholder values available to templates.
func RecipientData(r *model.Recipient) map[string]string {
	return map[string]string{
		"first_name": r.FirstName,
		"last_name":  r.LastName,
		"phone":      r.Phone,
	}
}
