package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	KeyUserID  = "user_id"
	KeyEmail   = "email"
	KeyIsAdmin = "isAdmin"

	localsContext = "USER_CONTEXT"
	localsUser    = "USER"
)
