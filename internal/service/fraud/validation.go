package fraud

import (
	stderrors "errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/risk-engine/internal/domain/errors"
)

var indexPattern = regexp.MustCompile(`^(\w+)\[(\d+)\]$`)

// invalidField is the top-level field a validation error points at, plus the
// slice index when the error sits inside a slice element
type invalidField struct {
	name  string
	index int
	tag   string
}

// invalidFields flattens validator output into top-level field references
func invalidFields(err error) []invalidField {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil
	}
	out := make([]invalidField, 0, len(verrs))
	for _, fe := range verrs {
		parts := strings.SplitN(fe.StructNamespace(), ".", 3)
		if len(parts) < 2 {
			continue
		}
		f := invalidField{name: parts[1], index: -1, tag: fe.Tag()}
		if m := indexPattern.FindStringSubmatch(parts[1]); m != nil {
			f.name = m[1]
			f.index, _ = strconv.Atoi(m[2])
		}
		out = append(out, f)
	}
	return out
}

// sanitizeActionData drops fields that fail validation so the dependent
// checks are skipped instead of failing the evaluation
func (s *service) sanitizeActionData(userID string, data ActionData) ActionData {
	err := s.validate.Struct(data)

	if data.Amount != nil && data.Amount.IsNegative() {
		s.logger.Warn("Dropping invalid action field",
			zap.String("user_id", userID), zap.String("field", "Amount"), zap.String("rule", "gte=0"))
		data.Amount = nil
	}
	if err == nil {
		return data
	}

	dropDocs := make(map[int]bool)
	for _, f := range invalidFields(err) {
		s.logger.Warn("Dropping invalid action field",
			zap.String("user_id", userID), zap.String("field", f.name), zap.String("rule", f.tag))
		switch f.name {
		case "IPAddress":
			data.IPAddress = ""
		case "GeoLocation":
			data.GeoLocation = nil
		case "TypingSpeed":
			data.TypingSpeed = nil
		case "SessionDuration":
			data.SessionDuration = nil
		case "TimeOfDay":
			data.TimeOfDay = nil
		case "AccountCount":
			data.AccountCount = 0
		case "IdentityDocuments":
			if f.index >= 0 {
				dropDocs[f.index] = true
			} else {
				data.IdentityDocuments = nil
			}
		}
	}

	if len(dropDocs) > 0 {
		kept := make([]IdentityDocument, 0, len(data.IdentityDocuments))
		for i, d := range data.IdentityDocuments {
			if !dropDocs[i] {
				kept = append(kept, d)
			}
		}
		data.IdentityDocuments = kept
	}

	return data
}

// sanitizeFingerprint clears invalid fingerprint fields. The fingerprint is
// still stored so the baseline stays current.
func (s *service) sanitizeFingerprint(userID string, fp DeviceFingerprint) DeviceFingerprint {
	err := s.validate.Struct(fp)
	if err == nil {
		return fp
	}
	for _, f := range invalidFields(err) {
		s.logger.Warn("Dropping invalid fingerprint field",
			zap.String("user_id", userID), zap.String("field", f.name), zap.String("rule", f.tag))
		switch f.name {
		case "Location":
			fp.Location = nil
		case "HardwareConcurrency":
			fp.HardwareConcurrency = 0
		case "DeviceMemory":
			fp.DeviceMemory = 0
		}
	}
	return fp
}

// validateSample rejects a behavior sample outright; profile updates are
// caller-driven and should surface bad input
func (s *service) validateSample(sample BehaviorSample) error {
	if sample.IsEmpty() {
		return errors.NewValidationError("EMPTY_SAMPLE", "behavior sample carries no data")
	}
	if err := s.validate.Struct(sample); err != nil {
		fields := invalidFields(err)
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, f.name)
		}
		return errors.NewValidationError("INVALID_SAMPLE", "behavior sample is invalid").
			WithDetails(map[string]interface{}{"fields": names}).
			WithCause(err)
	}
	return nil
}
