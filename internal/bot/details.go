package bot

import (
	"strings"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"
	"bookmylawn/internal/service"
)

// parseDetails reads "Name; Contact; Address; Total; Advance". Address and
// the amounts may be left out.
func parseDetails(text string, dates []string) (service.BookingDraft, error) {
	parts := strings.Split(text, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 {
		return service.BookingDraft{}, &domain.ValidationError{Message: "expected at least a name and a contact"}
	}

	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	return service.BookingDraft{
		CustomerName:  field(0),
		Contact:       field(1),
		Address:       field(2),
		Dates:         append([]string(nil), dates...),
		TotalAmount:   models.ParseAmount(field(3)),
		AdvanceAmount: models.ParseAmount(field(4)),
	}, nil
}
