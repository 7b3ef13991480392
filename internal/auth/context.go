// Package auth carries the reviewer identity of an API request.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// ReviewerHeader names the header a trusted proxy sets to the signed-in
// reviewer.
const ReviewerHeader = "X-Reviewer"

type contextKey string

const reviewerKey contextKey = "reviewer"

// ContextWithReviewer returns a new context that carries the reviewer name.
func ContextWithReviewer(ctx context.Context, reviewer string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, reviewerKey, reviewer)
}

// ReviewerFromContext retrieves the reviewer name from the context, if any.
func ReviewerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	reviewer, ok := ctx.Value(reviewerKey).(string)
	if !ok || reviewer == "" {
		return "", false
	}
	return reviewer, true
}

// Reviewer copies ReviewerHeader into the request context.
func Reviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reviewer := strings.TrimSpace(r.Header.Get(ReviewerHeader)); reviewer != "" {
			r = r.WithContext(ContextWithReviewer(r.Context(), reviewer))
		}
		next.ServeHTTP(w, r)
	})
}
