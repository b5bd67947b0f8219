package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyUserID        = "user_id"
	KeyEmail         = "email"
	KeyName          = "name"
	KeyRole          = "role"
	KeySchoolID      = "school_id"
	KeyFromProtected = "from_protected"
	KeySchool        = "SCHOOL"
)
