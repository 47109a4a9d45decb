// Package consts defines application-wide constants.
package consts

import "time"

const (
	// DefaultHandlerTimeout is the default timeout for short HTTP handlers.
	DefaultHandlerTimeout = 30 * time.Second
	// DefaultSimulateTime is the default time to simulate a transfer in the mock provider.
	DefaultSimulateTime = 1 * time.Second
	// DefaultFilenameMaxLen is the rune limit applied to sanitized titles.
	DefaultFilenameMaxLen = 100
	// MaxFilenameBytes is the NAME_MAX of common filesystems.
	MaxFilenameBytes = 255
	// PartSuffix marks a file that is still being written.
	PartSuffix = ".part"
	// DefaultChunkSize is the read buffer used when copying a stream to disk.
	DefaultChunkSize = 256 * 1024
)

// HTTP response messages.
const (
	// RespInvalidRequestBody is returned when the request body is invalid.
	RespInvalidRequestBody = "invalid request body"
	// RespQueryParamMissing is returned when a required path parameter is missing or invalid.
	RespQueryParamMissing = "query param missing or invalid"
	// RespUnprocessableEntity is returned when the request cannot be processed.
	RespUnprocessableEntity = "unprocessable entity"
	// RespInfoRetrieved is returned when video info is successfully looked up.
	RespInfoRetrieved = "info retrieved"
	// RespInfoFailed is returned when the video info lookup fails.
	RespInfoFailed = "info lookup failed"
	// RespDownloadFailed is returned when a download session fails.
	RespDownloadFailed = "download failed"
	// RespStreamingUnsupported is returned when the response writer cannot flush.
	RespStreamingUnsupported = "streaming unsupported"
	// RespFileNotFound is returned when a file is not found.
	RespFileNotFound = "file not found"
)

// Provider identifiers.
const (
	// ProviderYouTube is the native YouTube client provider identifier.
	ProviderYouTube = "youtube"
	// ProviderYTdlp is the yt-dlp provider identifier.
	ProviderYTdlp = "ytdlp"
	// ProviderMock is the mock provider identifier for testing.
	ProviderMock = "mock"
)
