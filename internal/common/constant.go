package common

// AuthorizationHeaderName is the HTTP header carrying the access token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token inside the Authorization header. The match
// is case-sensitive.
const BearerPrefix = "Bearer "

// TokenTypeBearer is reported to clients as the issued token type.
const TokenTypeBearer = "Bearer"

// RequestIDHeaderName carries the per-request correlation id.
const RequestIDHeaderName = "X-Request-ID"
