package models

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrValidation is a local, pre-network input error.
	ErrValidation = errors.New("validation error")
	// ErrNetwork means a remote service was unreachable or rejected the call.
	ErrNetwork = errors.New("network failure")
	// ErrUploadFailed means a media upload or a listing creation failed.
	ErrUploadFailed = errors.New("upload failed")
	// ErrPartialUpload means only a subset of a media batch was uploaded.
	ErrPartialUpload = errors.New("partial upload failure")
	// ErrURLExtraction means the media host response carried no URL.
	ErrURLExtraction = errors.New("url extraction failed")
	// ErrDecodeSkipped marks a malformed remote record that was ignored.
	ErrDecodeSkipped = errors.New("record skipped")
	// ErrFetchFailed means the listing read failed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrDeleteFailed means the remote delete failed.
	ErrDeleteFailed = errors.New("delete failed")
	// ErrUpdateFailed means the listing update failed.
	ErrUpdateFailed = errors.New("update failed")
	// ErrNotFound means the remote key holds no value.
	ErrNotFound = errors.New("not found")
	// ErrRegistrationFailed means the identity provider refused to create the account.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrCredentialsRejected means the identity provider refused the credentials.
	ErrCredentialsRejected = errors.New("credentials rejected")
	// ErrProfileFetch means sign-in succeeded but the user record could not be read.
	ErrProfileFetch = errors.New("login succeeded but failed to fetch user profile")
)

// Message converts an operation error into the short text shown to users.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrProfileFetch):
		return "Login success, but failed to fetch user role."
	case errors.Is(err, ErrCredentialsRejected):
		return "Login failed: " + err.Error()
	case errors.Is(err, ErrRegistrationFailed):
		return "Registration failed: " + err.Error()
	case errors.Is(err, ErrFetchFailed):
		return "Failed to load properties"
	case errors.Is(err, ErrDeleteFailed):
		return "Property not deleted"
	case errors.Is(err, ErrUpdateFailed):
		return "Update failed: " + err.Error()
	case errors.Is(err, ErrUploadFailed):
		return "Upload failed: " + err.Error()
	default:
		return err.Error()
	}
}
