package security

// Event type constants for security audit logging. Using constants keeps the
// audit trail queryable and prevents typos at call sites.
const (
	// Login lifecycle events

	// EventLoginSuccess is logged when the admin authenticates successfully
	EventLoginSuccess = "login_success"

	// EventLoginFailure is logged when a login attempt fails (bad or missing
	// credentials). A failure that trips the lockout threshold carries
	// lockout details on the same entry rather than a second entry.
	EventLoginFailure = "login_failure"

	// EventLogout is logged when an authenticated session is destroyed on request
	EventLogout = "logout"

	// Access control events

	// EventUnauthorizedAccess is logged when a protected route is hit without
	// a valid session, including when the session turned out to be expired
	EventUnauthorizedAccess = "unauthorized_access"

	// EventRateLimited is logged when a login attempt is refused because the
	// identity is locked out, or a request exceeds the API rate limit
	EventRateLimited = "rate_limited"

	// Content management events

	// EventPropertyCreated is logged when a listing is created
	EventPropertyCreated = "property_created"

	// EventPropertyUpdated is logged when a listing is updated
	EventPropertyUpdated = "property_updated"

	// EventPropertyDeleted is logged when a listing is deleted
	EventPropertyDeleted = "property_deleted"

	// EventImageUploaded is logged when a property image is uploaded
	EventImageUploaded = "image_uploaded"
)

// Actor constants for audit entries where no authenticated username exists.
const (
	// ActorUnknown marks events from unauthenticated requesters
	ActorUnknown = "unknown"

	// ActorSystem marks events originated by the process itself
	ActorSystem = "system"
)
