package conf

import (
	"time"

	"github.com/tkoskela/inatwatch/internal/errors"
)

// ValidateSettings checks the loaded settings for values the workflows
// cannot operate with. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if settings.API.BaseURL == "" {
		return validationError("api.baseurl must not be empty")
	}
	if settings.API.MaxAttempts < 1 {
		return validationError("api.maxattempts must be at least 1")
	}
	if settings.API.InitialBackoff < 1 {
		return validationError("api.initialbackoff must be at least 1 second")
	}
	if settings.API.MaxBackoff < settings.API.InitialBackoff {
		return validationError("api.maxbackoff must not be lower than api.initialbackoff")
	}
	if settings.API.Timeout < 1 {
		return validationError("api.timeout must be at least 1 second")
	}

	if settings.Location.Latitude < -90 || settings.Location.Latitude > 90 {
		return validationError("location.latitude must be between -90 and 90")
	}
	if settings.Location.Longitude < -180 || settings.Location.Longitude > 180 {
		return validationError("location.longitude must be between -180 and 180")
	}
	if settings.Location.Radius <= 0 {
		return validationError("location.radius must be positive")
	}
	if _, err := time.LoadLocation(settings.Location.Timezone); err != nil {
		return errors.Newf("location.timezone %q is not a valid IANA timezone: %w",
			settings.Location.Timezone, err).
			Category(errors.CategoryValidation).
			Component("conf").
			Build()
	}

	switch settings.Rarity.Method {
	case RarityMethodRadius, RarityMethodGlobal:
	case RarityMethodPlace:
		if settings.Rarity.PlaceID <= 0 {
			return validationError("rarity.placeid is required when rarity.method is place")
		}
	default:
		return validationError("rarity.method must be one of radius, place or global")
	}

	if settings.Digest.AgeThresholdDays < 0 {
		return validationError("digest.agethresholddays must not be negative")
	}
	if settings.Digest.LookbackDays < 1 {
		return validationError("digest.lookbackdays must be at least 1")
	}
	if settings.Alert.LookbackMinutes < 1 {
		return validationError("alert.lookbackminutes must be at least 1")
	}

	if settings.State.Path == "" {
		return validationError("state.path must not be empty")
	}
	if settings.State.RetentionDays < 1 {
		return validationError("state.retentiondays must be at least 1")
	}

	return nil
}

func validationError(msg string) error {
	return errors.Newf("%s", msg).
		Category(errors.CategoryValidation).
		Component("conf").
		Build()
}
