package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer
// credential on outbound requests.
const AuthorizationHeaderName = "Authorization"

// AuthorizationScheme prefixes the credential in the authorization header.
const AuthorizationScheme = "Bearer"

// RequestIDHeaderName carries a per-request correlation id.
const RequestIDHeaderName = "X-Request-Id"
