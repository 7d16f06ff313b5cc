// Package constants contains shared HTTP header names and
// common content type strings used across the service.
package constants

// Header names commonly used across the application.
const (
	// HeaderAccept is the HTTP "Accept" header name.
	HeaderAccept = "Accept"

	// HeaderAuthorization is the HTTP "Authorization" header name.
	HeaderAuthorization = "Authorization"

	// HeaderContentType is the HTTP "Content-Type" header name.
	HeaderContentType = "Content-Type"

	// HeaderLocation is the HTTP "Location" header name.
	HeaderLocation = "Location"

	// HeaderOrigin is the HTTP "Origin" header name.
	HeaderOrigin = "Origin"

	// HeaderReferer is the HTTP "Referer" header name.
	HeaderReferer = "Referer"

	// HeaderRetryAfter is the HTTP "Retry-After" header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderUserAgent is the HTTP "User-Agent" header name.
	HeaderUserAgent = "User-Agent"

	// HeaderXForwardedFor is the proxy client address header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXRealIP is the nginx-style client address header name.
	HeaderXRealIP = "X-Real-IP"

	// HeaderXRequestID is the custom request ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// Common media / content types used in requests and responses.
const (
	// ContentTypeJSON represents "application/json".
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded represents
	// "application/x-www-form-urlencoded".
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"

	// ContentTypeMultipartForm represents "multipart/form-data".
	ContentTypeMultipartForm = "multipart/form-data"

	// ContentTypeOctetStream represents "application/octet-stream".
	ContentTypeOctetStream = "application/octet-stream"

	// ContentTypePlainUTF8 represents "text/plain; charset=utf-8".
	ContentTypePlainUTF8 = "text/plain; charset=utf-8"
)

// Routes shared by the router, the middleware and the login redirects.
const (
	// APIPrefix is the root of every gateway endpoint.
	APIPrefix = "/api/v1"

	// LoginPath starts the browser login flow.
	LoginPath = APIPrefix + "/auth/login"

	// HealthPathPrefix is excluded from request logging.
	HealthPathPrefix = APIPrefix + "/health"
)
