// Package apiresponses renders gateway errors and redirects for the Gin handlers.
package apiresponses
