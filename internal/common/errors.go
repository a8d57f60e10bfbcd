package common

import "go.uber.org/zap"

type ErrorCode string
type ErrorMessage string

const (
	ErrCodeConfigLoadFailed   ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeDialFailed         ErrorCode = "DIAL_FAILED"
	ErrCodeTransportFailed    ErrorCode = "TRANSPORT_FAILED"
	ErrCodeMalformedMessage   ErrorCode = "MALFORMED_MESSAGE"
	ErrCodeBootstrapFailed    ErrorCode = "BOOTSTRAP_FAILED"
	ErrCodePersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeTickerPollFailed   ErrorCode = "TICKER_POLL_FAILED"
	ErrCodeTickerCacheFailed  ErrorCode = "TICKER_CACHE_FAILED"
	ErrCodeHandlerPanic       ErrorCode = "HANDLER_PANIC"
	ErrCodeHTTPServeFailed    ErrorCode = "HTTP_SERVE_FAILED"
	ErrCodeTransportCloseFail ErrorCode = "TRANSPORT_CLOSE_FAILED"
)

const (
	ErrMsgConfigLoadFailed   ErrorMessage = "Failed to load configuration"
	ErrMsgDialFailed         ErrorMessage = "Failed to construct stream connection"
	ErrMsgTransportFailed    ErrorMessage = "Stream connection failed"
	ErrMsgMalformedMessage   ErrorMessage = "Malformed stream message dropped"
	ErrMsgBootstrapFailed    ErrorMessage = "Failed to load history"
	ErrMsgPersistenceFailed  ErrorMessage = "Failed to persist preferences"
	ErrMsgTickerPollFailed   ErrorMessage = "Failed to poll 24h tickers"
	ErrMsgTickerCacheFailed  ErrorMessage = "Failed to mirror tickers to cache"
	ErrMsgHandlerPanic       ErrorMessage = "Recovered panic in callback"
	ErrMsgHTTPServeFailed    ErrorMessage = "HTTP server failed"
	ErrMsgTransportCloseFail ErrorMessage = "failed to close stream connection"
)

func (e ErrorCode) String() string {
	return string(e)
}

func (m ErrorMessage) String() string {
	return string(m)
}

// Code tags a log entry with its error code.
func Code(c ErrorCode) zap.Field {
	return zap.String("error_code", c.String())
}
