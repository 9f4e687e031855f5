package provider

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/zipstream/internal/metrics"
	"github.com/fruitsalade/zipstream/internal/node"
)

// Resolve tries each registration in order and returns the first node
// produced. Provider errors and panics are logged and treated as not found;
// they never stop the chain. Only context cancellation is returned.
func Resolve(ctx context.Context, logger *zap.Logger, regs []Registration, logicalPath string) (Resolution, error) {
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		start := time.Now()
		n, err := safeResolve(ctx, reg.Provider, logicalPath)
		dur := time.Since(start)

		switch {
		case err == nil && n != nil:
			metrics.RecordResolution(reg.Name, metrics.ResultFound, dur)
			logger.Debug("path resolved",
				zap.String("path", logicalPath),
				zap.String("provider", reg.Name),
				zap.String("kind", node.Kind(n)))
			return Resolution{Node: n, Provider: reg.Name, Found: true}, nil
		case err == nil || errors.Is(err, ErrNotFound):
			metrics.RecordResolution(reg.Name, metrics.ResultNotFound, dur)
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Resolution{}, ctxErr
			}
			metrics.RecordResolution(reg.Name, metrics.ResultError, dur)
			logger.Warn("provider failed to resolve path",
				zap.String("provider", reg.Name),
				zap.String("path", logicalPath),
				zap.Error(err))
		}
	}

	logger.Debug("path not resolved by any provider", zap.String("path", logicalPath))
	return Resolution{}, nil
}

func safeResolve(ctx context.Context, p Provider, logicalPath string) (n node.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = nil
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	n, err = p.Resolve(ctx, logicalPath)
	if err == nil && n != nil && isNilNode(n) {
		return nil, fmt.Errorf("provider returned a nil %T", n)
	}
	return n, err
}

// isNilNode reports a typed nil behind the Node interface.
func isNilNode(n node.Node) bool {
	v := reflect.ValueOf(n)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
