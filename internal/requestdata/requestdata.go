package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKeyType struct{}

var requestDataKey = requestDataKeyType{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData travels down from the middleware stack. UserID is set by the
// auth middleware; TenantID and TenantRole only inside tenant-scoped routes.
type RequestData struct {
	TokenString  string
	RefreshToken string
	UserID       uuid.UUID
	TenantID     uuid.UUID
	TenantRole   string
}
