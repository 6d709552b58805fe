package oauth

import "fmt"

// AuthDeniedError is returned when the provider reports an authorization
// error, typically because the user declined.
type AuthDeniedError struct {
	Description string
}

func (e AuthDeniedError) Error() string {
	return fmt.Sprintf("X authorization was denied: %s", e.Description)
}

// StateMismatchError is the CSRF/replay guard: the callback state did not
// match the stored one-shot value, or the slot was already consumed.
type StateMismatchError struct{}

func (StateMismatchError) Error() string {
	return "Invalid OAuth state. Please try connecting again."
}

// MissingCodeError is returned when the callback carried no authorization
// code.
type MissingCodeError struct{}

func (MissingCodeError) Error() string {
	return "No authorization code received from X."
}

// TokenExchangeError hides the token endpoint's low-level failure from the end
// user; operators get the detail from the diagnostic log.
type TokenExchangeError struct{}

func (TokenExchangeError) Error() string {
	return "Failed to exchange authorization code for tokens. Please try again."
}

// ProfileFetchError hides the users/me failure from the end user.
type ProfileFetchError struct{}

func (ProfileFetchError) Error() string {
	return "Failed to retrieve your X profile. Please try again."
}
