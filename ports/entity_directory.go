package ports

import "context"

// EntityDirectory resolves creator/portfolio ids to display names.
// Ids without a known name are simply absent from the returned map.
type EntityDirectory interface {
	DisplayNames(ctx context.Context, kind string, ids []string) (map[string]string, error)
}
