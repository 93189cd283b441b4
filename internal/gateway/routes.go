package gateway

import "strings"

// Route maps one API prefix to a logical backend service.
type Route struct {
	Prefix  string
	Service string
}

// routeTable is ordered; the first matching prefix wins.
var routeTable = []Route{
	{Prefix: "/api/auth/", Service: "auth-service"},
	{Prefix: "/api/users/", Service: "auth-service"},
	{Prefix: "/api/patients/", Service: "patient-service"},
	{Prefix: "/api/doctors/", Service: "doctor-service"},
	{Prefix: "/api/appointments/", Service: "appointment-service"},
	{Prefix: "/api/medical-records/", Service: "medical-records-service"},
	{Prefix: "/api/facilities/", Service: "facility-service"},
	{Prefix: "/api/notifications/", Service: "notification-service"},
	{Prefix: "/api/audit/", Service: "audit-service"},
}

// ServiceFor resolves the backend for a request path, or "" when the path is
// not routable.
func ServiceFor(path string) string {
	for _, r := range routeTable {
		if strings.HasPrefix(path, r.Prefix) || path+"/" == r.Prefix {
			return r.Service
		}
	}
	return ""
}

// publicPaths bypass authentication and rate limiting at the edge.
var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/auth/refresh",
	"/q/health",
	"/q/health/live",
	"/q/health/ready",
	"/q/metrics",
	"/q/openapi",
}

var publicPrefixes = []string{
	"/swagger-ui/",
}

// IsPublicPath reports whether the path skips the auth and rate-limit
// middleware.
func IsPublicPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
