package node

import (
	"github.com/apex/log"

	"tableread/internal/config"
	"tableread/internal/mount"
	"tableread/internal/resolver"
)

// NewResolver builds the resolver a node configuration describes: its
// workspace roots, a mount registry over its mountpoints, and its hub and URL
// backends.
func NewResolver(n config.Node, logger log.Interface) (*resolver.Resolver, error) {
	if logger == nil {
		logger = log.Log
	}
	mounts, err := mount.NewRegistry(n.Hub, n.Mounts...)
	if err != nil {
		return nil, err
	}
	mounts.WithLogger(logger)

	urlOpts := n.URL
	if urlOpts.Logger == nil {
		urlOpts.Logger = logger
	}
	return resolver.New(resolver.Env{
		Workspace: n.Workspace,
		Mounts:    mounts,
		Hub:       n.Hub,
		URL:       urlOpts,
		Logger:    logger,
	}), nil
}
