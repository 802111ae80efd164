package router

import (
	"regexp"
	"strings"

	"github.com/opsline/ticketbroker/internal/models"
)

var (
	billingPattern   = regexp.MustCompile(`(?i)invoice|billing|payment|charge|refund|subscription|price`)
	legalPattern     = regexp.MustCompile(`(?i)contract|legal|compliance|lawsuit|terms of service|gdpr|liability`)
	technicalPattern = regexp.MustCompile(`(?i)bug|error|crash|outage|server|api|login|broken|down`)
)

// Classify assigns a ticket to one of the three support categories via
// keyword matching over subject+body, checked in the fixed order Billing,
// Technical, Legal. Technical is the default bucket when no keyword
// matches, since most unclassified support traffic is technical in nature.
func Classify(subject, body string) models.TicketCategory {
	text := strings.ToLower(subject + " " + body)

	switch {
	case billingPattern.MatchString(text):
		return models.CategoryBilling
	case technicalPattern.MatchString(text):
		return models.CategoryTechnical
	case legalPattern.MatchString(text):
		return models.CategoryLegal
	default:
		return models.CategoryTechnical
	}
}
