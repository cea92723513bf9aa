// Package handlers holds the HTTP endpoints: the Telegram webhook and the
// read-only ops API. Errors always carry one of the stable codes below so that
// scripts can branch on them.
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "card not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	ErrCodeStatsFailed  = "stats_failed"
	ErrCodeExportFailed = "export_failed"
)
