package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer token
// on outbound API requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix is prepended to the token value in the Authorization header.
const BearerPrefix = "Bearer "
