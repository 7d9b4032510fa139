package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextSettersDoNotMutateParent(t *testing.T) {
	parent := SetAccountIDInContext(context.Background(), "acct_1")
	child := SetEmailIDInContext(parent, "email_1")
	child = SetJobIDInContext(child, "job")

	assert.Equal(t, "acct_1", GetAccountIDFromContext(child))
	assert.Equal(t, "email_1", GetEmailIDFromContext(child))
	assert.Equal(t, "job", GetJobIDFromContext(child))
	assert.Empty(t, GetEmailIDFromContext(parent))
	assert.Empty(t, GetAppSourceFromContext(context.Background()))
}
