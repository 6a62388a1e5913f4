package errors

import "fmt"

var (
	ErrUnauthorized  = fmt.Errorf("no active session")
	ErrAuthExpired   = fmt.Errorf("access token expired")
	ErrAuthInvalid   = fmt.Errorf("session invalid, re-authentication required")
	ErrRefreshFailed = fmt.Errorf("refresh token rejected")
	ErrNotFound      = fmt.Errorf("resource not found")
	ErrNoSelection   = fmt.Errorf("no active conversation")
	ErrChannelClosed = fmt.Errorf("channel connection closed")
	ErrSendFailed    = fmt.Errorf("message send failed")
	ErrInvalidLogin  = fmt.Errorf("invalid login request")
	ErrWorkerPanic   = fmt.Errorf("worker panic")
)
