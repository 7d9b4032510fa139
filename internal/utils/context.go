package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	AccountID string
	EmailID   string
	JobID     string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		AccountID: c.Param("accountId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetAccountIDFromContext(ctx context.Context) string {
	return GetContext(ctx).AccountID
}

func GetEmailIDFromContext(ctx context.Context) string {
	return GetContext(ctx).EmailID
}

func GetJobIDFromContext(ctx context.Context) string {
	return GetContext(ctx).JobID
}

// The setters copy the context value so a child context never mutates its parent's.

func SetAccountIDInContext(ctx context.Context, accountID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AccountID = accountID
	return WithCustomContext(ctx, &customContext)
}

func SetEmailIDInContext(ctx context.Context, emailID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.EmailID = emailID
	return WithCustomContext(ctx, &customContext)
}

func SetJobIDInContext(ctx context.Context, jobID string) context.Context {
	customContext := *GetContext(ctx)
	customContext.JobID = jobID
	return WithCustomContext(ctx, &customContext)
}
