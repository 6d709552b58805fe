package social

import "fmt"

// ConfigurationError is returned when required application configuration
// (client id/secret and the like) is missing.
type ConfigurationError struct {
	Provider Provider
	Detail   string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Provider, e.Detail)
}

// CredentialValidationError reports a missing mandatory credential field.
type CredentialValidationError struct {
	Field string
}

func (e CredentialValidationError) Error() string {
	return fmt.Sprintf("Missing required credential: %s", e.Field)
}

// UploadError names the media item that failed to upload.
type UploadError struct {
	Provider Provider
	Filename string
}

func (e UploadError) Error() string {
	if e.Provider == ProviderBluesky {
		return fmt.Sprintf("Failed to upload image to Bluesky: %s", e.Filename)
	}
	return fmt.Sprintf("Failed to upload media: %s", e.Filename)
}

// UnsupportedFeatureError marks a capability a provider does not offer yet.
type UnsupportedFeatureError struct {
	Provider Provider
	Feature  string
}

func (e UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s %s is not yet implemented", e.Provider, e.Feature)
}

// PublishAPIError carries the remote API's own message for a rejected post,
// falling back to the HTTP status when the body had no structured detail.
type PublishAPIError struct {
	Provider Provider
	Message  string
	Status   int
}

func (e PublishAPIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Unknown %s API error (HTTP %d)", e.Provider, e.Status)
}
