package application

import (
	"context"

	"github.com/emekauja/shopflow/pkg/tracing"
)

func traceparentFrom(ctx context.Context) string {
	return tracing.Traceparent(ctx)
}
