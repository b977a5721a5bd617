package handler

import (
	"net/http"
	"strings"

	"consentd/internal/consent/models"
	"consentd/internal/contact"
	dErrors "consentd/pkg/domain-errors"
)

// parseListFilter reads the query-string filters for the list endpoint.
// Contact filters come as type/value pairs so that a phone number and an
// email can never collide.
func parseListFilter(r *http.Request) (*models.Filter, error) {
	q := r.URL.Query()
	filter := &models.Filter{}

	requester, err := parseContactFilter(q.Get("requester_type"), q.Get("requester_value"), "requester")
	if err != nil {
		return nil, err
	}
	filter.Requester = requester

	target, err := parseContactFilter(q.Get("target_type"), q.Get("target_value"), "target")
	if err != nil {
		return nil, err
	}
	filter.Target = target

	if raw := strings.ToLower(strings.TrimSpace(q.Get("status"))); raw != "" {
		status := models.Status(raw)
		if !status.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown status filter")
		}
		filter.Status = &status
	}

	return filter, nil
}

func parseContactFilter(rawType, rawValue, field string) (*contact.Ref, error) {
	rawType = strings.ToLower(strings.TrimSpace(rawType))
	rawValue = strings.TrimSpace(rawValue)
	if rawType == "" && rawValue == "" {
		return nil, nil
	}
	if rawType == "" || rawValue == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, field+" filter needs both type and value")
	}
	ref, err := contact.Canonicalize(rawValue, contact.Type(rawType), "")
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
